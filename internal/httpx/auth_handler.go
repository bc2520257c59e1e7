package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-pos-ledger/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type AuthHandler struct {
	Auth     *auth.Authority
	Validate *validator.Validate
	Log      logrus.FieldLogger
}

type RegisterReq struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=4,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=cashier manager admin"`
}

type LoginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResp struct {
	Token    string    `json:"token"`
	UserID   int64     `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

func trimRegister(dst any) {
	req := dst.(*RegisterReq)
	req.Username = strings.TrimSpace(req.Username)
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.Post("/auth/logout", h.logout)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterReq
	if !decode(w, r, h.Validate, &req, trimRegister) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id, err := h.Auth.Register(ctx, req.Username, req.Password, req.Role)
	if err != nil {
		writeError(w, r, h.Log, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"user_id": id})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginReq
	if !decode(w, r, h.Validate, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.Log, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResp{Token: s.Token, UserID: s.UserID, IssuedAt: s.IssuedAt})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Revoke(r.Context(), r.Header.Get("Authorization")); err != nil {
		writeError(w, r, h.Log, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequireSession rejects requests whose Authorization header does not
// resolve to a live session.
func RequireSession(a *auth.Authority, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := a.Resolve(r.Context(), r.Header.Get("Authorization")); err != nil {
				writeError(w, r, log, "RequireSession", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
