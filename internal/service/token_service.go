package service

import (
	"time"

	"taskboard-server/internal/config"
	"taskboard-server/internal/domain"
	"taskboard-server/pkg/jwt"
)

// TokenService mints and verifies the access/refresh pair. The two kinds
// are signed with different secrets, so neither verifies as the other.
type TokenService struct {
	accessSecret      string
	accessExpiration  time.Duration
	refreshSecret     string
	refreshExpiration time.Duration
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{
		accessSecret:      cfg.AccessSecret,
		accessExpiration:  cfg.AccessExpiration,
		refreshSecret:     cfg.RefreshSecret,
		refreshExpiration: cfg.RefreshExpiration,
	}
}

func identityOf(user *domain.User) jwt.Identity {
	return jwt.Identity{ID: user.ID, Email: user.Email, Username: user.Username}
}

func (s *TokenService) IssueAccessToken(user *domain.User) (string, error) {
	return jwt.GenerateToken(identityOf(user), s.accessExpiration, s.accessSecret)
}

func (s *TokenService) IssueRefreshToken(user *domain.User) (string, error) {
	return jwt.GenerateToken(identityOf(user), s.refreshExpiration, s.refreshSecret)
}

func (s *TokenService) VerifyAccess(token string) (*jwt.Claims, error) {
	return jwt.ValidateToken(token, s.accessSecret)
}

func (s *TokenService) VerifyRefresh(token string) (*jwt.Claims, error) {
	return jwt.ValidateToken(token, s.refreshSecret)
}

func (s *TokenService) AccessExpiration() time.Duration {
	return s.accessExpiration
}

func (s *TokenService) RefreshExpiration() time.Duration {
	return s.refreshExpiration
}
