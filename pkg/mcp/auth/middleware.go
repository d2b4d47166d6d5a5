// Package mcpauth guards the MCP endpoint. Failures are reported as RFC 6750
// Bearer token errors so OAuth-aware MCP clients can react to them.
package mcpauth

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
)

// Middleware authenticates MCP requests.
type Middleware struct {
	authService auth.AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new MCP auth middleware.
func NewMiddleware(authService auth.AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger.Named("mcp_auth"),
	}
}

// RequireAuth admits requests whose token is valid, names a tenant and names
// a subject. Tool calls are recorded against that subject, so a token
// without one is rejected here rather than inside every tool.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.reject(w, r, "The access token is invalid or expired", err)
			return
		}
		if err := m.authService.RequireTenantID(claims); err != nil {
			m.reject(w, r, "The access token is missing required tenant scope", err)
			return
		}
		if claims.Subject == "" {
			m.reject(w, r, "The access token does not identify a user", auth.ErrMissingSubject)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), claims, token)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, description string, cause error) {
	m.logger.Debug("Rejected MCP request",
		zap.String("path", r.URL.Path),
		zap.String("reason", description),
		zap.Error(cause))
	writeBearerError(w, "invalid_token", description)
}

// writeBearerError writes a 401 with an RFC 6750 section 3 challenge.
func writeBearerError(w http.ResponseWriter, code, description string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error=%q, error_description=%q`, code, description))
	w.WriteHeader(http.StatusUnauthorized)
}
