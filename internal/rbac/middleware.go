package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-core/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-core/internal/shared"
)

// Middleware wires authentication and authorization helpers for HTTP handlers.
type Middleware struct {
	Chain  *Chain
	Tokens *TokenParser
	Logger *slog.Logger
}

// Authenticate verifies the bearer token and stores its claims in context.
// Requests without a valid token are rejected.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.NewError(shared.ErrUnauthenticated, "missing bearer token"))
			return
		}
		claims, err := m.Tokens.Parse(token)
		if err != nil {
			if errors.Is(err, ErrInvalidClaims) {
				m.logger().Warn("rejecting invalid claims", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}

// Require ensures the current identity may perform action on module.
func (m Middleware) Require(module Module, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			err := m.Chain.Authorize(r.Context(), Request{
				Subject: claims.Subject,
				Claims:  claims,
				Module:  module,
				Action:  action,
			})
			if err != nil {
				if !errors.Is(err, shared.ErrPermissionDenied) {
					m.logger().Error("rbac require", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
