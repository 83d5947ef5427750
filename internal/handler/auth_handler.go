package handler

import (
	"net/http"
	"time"

	"taskboard-server/internal/config"
	"taskboard-server/internal/domain"
	"taskboard-server/internal/middleware"
	"taskboard-server/internal/service"
	"taskboard-server/pkg/response"

	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	authService *service.AuthService
	cookies     config.CookieConfig
	log         logrus.FieldLogger
}

func NewAuthHandler(authService *service.AuthService, cookies config.CookieConfig, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		log:         log,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	user, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Message(w, http.StatusCreated, map[string]interface{}{"user": user}, "User registered successfully")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.setSessionCookies(w, loginResp)
	response.Message(w, http.StatusOK, loginResp, "User logged in successfully")
}

// Refresh takes the refresh token from its cookie, falling back to the
// JSON body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if c, err := r.Cookie(middleware.RefreshTokenCookie); err == nil {
		req.RefreshToken = c.Value
	}
	if req.RefreshToken == "" {
		if err := decodeJSON(r, &req, true); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	tokenResp, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.setSessionCookies(w, tokenResp)
	response.Message(w, http.StatusOK, tokenResp, "Access token refreshed")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	if err := h.authService.Logout(r.Context(), user.ID); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.clearCookie(w, middleware.AccessTokenCookie)
	h.clearCookie(w, middleware.RefreshTokenCookie)
	h.clearCookie(w, middleware.LegacyTokenCookie)

	response.Message(w, http.StatusOK, map[string]interface{}{}, "User logged out")
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, resp *domain.LoginResponse) {
	tokens := h.authService.Tokens()
	h.setCookie(w, middleware.AccessTokenCookie, resp.AccessToken, tokens.AccessExpiration())
	h.setCookie(w, middleware.RefreshTokenCookie, resp.RefreshToken, tokens.RefreshExpiration())
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, lifetime time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   int(lifetime.Seconds()),
		Expires:  time.Now().Add(lifetime),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
