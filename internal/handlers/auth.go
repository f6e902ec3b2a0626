package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/store"
)

// TokenCookie carries the session token.
const TokenCookie = "token"

// AuthHandler serves registration, login and the cookie session.
type AuthHandler struct {
	users        *services.UserService
	log          logging.Logger
	secureCookie bool
}

// NewAuthHandler constructs an AuthHandler. secureCookie marks the session
// cookie Secure, for deployments behind TLS.
func NewAuthHandler(users *services.UserService, log logging.Logger, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		users:        users,
		log:          log.With("component", "auth"),
		secureCookie: secureCookie,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.With(h.RequireSession).Get("/profile", h.Profile)
	r.Post("/logout", h.Logout)
}

// RequireSession verifies the token cookie and puts its claims in the
// request context. A missing cookie is 401, an untrusted one 403.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(TokenCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "token must be provided")
			return
		}

		claims, err := h.users.Authenticate(cookie.Value)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err, "failed to create user")
		return
	}

	h.log.Info(r.Context(), "user registered", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

// Login checks the credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, token, err := h.users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, r, h.log, err, "failed to authenticate")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{ID: user.ID.String(), Username: user.Username})
}

// Profile echoes the verified session claims once the account behind them
// is confirmed to still exist.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token must be provided")
		return
	}

	if _, err := h.users.GetByID(r.Context(), claims.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusForbidden, "invalid token")
			return
		}
		writeServiceError(w, r, h.log, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// Logout clears the session cookie. It needs no session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, "ok")
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
