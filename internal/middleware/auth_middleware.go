package middleware

import (
	"context"
	"net/http"
	"strings"

	"taskboard-server/internal/domain"
	"taskboard-server/pkg/response"
)

type contextKey string

const (
	userKey  contextKey = "user"
	stateKey contextKey = "requestState"
)

// Cookie names carrying the session tokens. LegacyTokenCookie is still
// accepted on reads.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	LegacyTokenCookie  = "token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// AuthMiddleware rejects requests without a valid access token and
// attaches the resolved user to the request context.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := TokenFromRequest(r)
			if token == "" {
				response.Unauthorized(w, "Unauthorized request")
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				response.Unauthorized(w, "Invalid access token")
				return
			}

			if state, ok := r.Context().Value(stateKey).(*requestState); ok {
				state.userID = user.ID
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// TokenFromRequest reads the access token from the session cookie, the
// legacy cookie or an Authorization bearer header, in that order.
func TokenFromRequest(r *http.Request) string {
	for _, name := range []string{AccessTokenCookie, LegacyTokenCookie} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}

	return ""
}

func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok && user != nil
}

func GetUserID(r *http.Request) string {
	if user, ok := UserFromContext(r.Context()); ok {
		return user.ID
	}
	return ""
}
