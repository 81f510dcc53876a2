package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AuthService interface {
	Register(ctx context.Context, name, email, password string) (auth.User, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID int64) (auth.User, error)
}

type AuthHandler struct {
	Auth AuthService
	Log  *zap.Logger
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/token", h.token)
		r.Post("/logout", h.logout)
		r.With(authn).Get("/user", h.me)
	})
}

func (h *AuthHandler) internal(w http.ResponseWriter, op string, err error) {
	h.Log.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "store_failure", "server error")
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := h.Auth.Register(ctx, req.Name, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingFields), errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		h.internal(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Registration successful", "user": u})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	case err != nil:
		h.internal(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *AuthHandler) token(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	access, err := h.Auth.RefreshAccess(r.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, auth.ErrRefreshRejected):
		writeError(w, http.StatusForbidden, "invalid_token", err.Error())
		return
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "invalid_token", "invalid refresh token")
		return
	case err != nil:
		h.internal(w, "refresh token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": access})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}
	if err := h.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		h.internal(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Auth.Me(r.Context(), callerFrom(r).ID)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found")
		return
	case err != nil:
		h.internal(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
