package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/bookledger/internal/platform/httpx"
	platformshared "github.com/odyssey-erp/bookledger/internal/shared"
)

// Middleware authenticates requests and enforces roles.
type Middleware struct {
	Tokens *Tokens
	Logger *slog.Logger
}

// Authenticate requires a valid bearer token and stores the caller on the
// request context, also as the audit actor.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.Unauthorized(w, "bearer token required")
			return
		}
		caller, err := m.Tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("token rejected", slog.Any("error", err))
			}
			detail := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				detail = "token expired"
			}
			httpx.Unauthorized(w, detail)
			return
		}
		ctx := ContextWithCaller(r.Context(), caller)
		ctx = platformshared.ContextWithActor(ctx, caller.actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets through callers holding one of roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				httpx.Unauthorized(w, "bearer token required")
				return
			}
			for _, role := range roles {
				if strings.EqualFold(caller.Role, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Forbidden(w, "role "+strings.Join(roles, " or ")+" required")
		})
	}
}
