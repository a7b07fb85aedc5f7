package authz

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/longstone-am/longstone/internal/shared"
)

// Middleware wires permission checks into HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the session user holds the permission. Missing session,
// unknown user, inactive user and plain denial all answer 403; a store or
// identity failure answers 500 and never lets the request through.
func (m Middleware) Require(permission Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := m.Service.HasPermission(r.Context(), userID, permission)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check failed",
						slog.String("permission", string(permission)),
						slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (uuid.UUID, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return uuid.Nil, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return uuid.Nil, false
	}
	return id, true
}
