package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard-server/internal/domain"
	"taskboard-server/internal/repository"
	"taskboard-server/pkg/hash"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	userRepo repository.UserRepository
	tokens   *TokenService
	validate *validator.Validate
	log      logrus.FieldLogger
}

func NewAuthService(userRepo repository.UserRepository, tokens *TokenService, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		validate: validator.New(),
		log:      log.WithField("component", "auth"),
	}
}

func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.PublicUser, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Username == "" || req.Email == "" || strings.TrimSpace(req.Password) == "" {
		return nil, fmt.Errorf("%w: all fields are required", ErrValidation)
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	// The validator counts runes; bcrypt limits bytes.
	if len(req.Password) > hash.MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, hash.MaxPasswordBytes)
	}

	hashedPassword, err := hash.Hash(req.Password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: user with email already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.WithField("user_id", user.ID).Info("user registered")

	return user.Public(), nil
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if req.Email == "" && req.Username == "" {
		return nil, fmt.Errorf("%w: username or email is required", ErrValidation)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	user, err := s.userRepo.FindByEmailOrUsername(ctx, req.Email, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: user does not exist", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := hash.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, fmt.Errorf("%w: invalid user credentials", ErrUnauthorized)
	}

	resp, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.SetRefreshToken(ctx, user.ID, resp.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	s.log.WithField("user_id", user.ID).Info("user logged in")

	return resp, nil
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.userRepo.SetRefreshToken(ctx, userID, ""); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: user does not exist", ErrUnauthorized)
		}
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}

	s.log.WithField("user_id", userID).Info("user logged out")
	return nil
}

// Refresh exchanges a refresh token for a new pair. The stored token is
// swapped atomically, so a token can be redeemed at most once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.LoginResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrUnauthorized)
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	resp, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.ReplaceRefreshToken(ctx, user.ID, refreshToken, resp.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: refresh token is expired or used", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return resp, nil
}

// Authenticate resolves an access token to the user it was issued for.
// The user must still exist.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrUnauthorized)
	}

	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid access token", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

func (s *AuthService) issuePair(user *domain.User) (*domain.LoginResponse, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &domain.LoginResponse{
		User:         user.Public(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessExpiration().Seconds()),
	}, nil
}
