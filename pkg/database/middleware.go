package database

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
)

// WithTenantContext binds a tenant scope to the request for the duration of
// the handler. It must run inside the auth middleware, which puts the claims
// it reads on the context.
func WithTenantContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := auth.RequireTenantIDFromContext(r.Context())
			if err != nil {
				logger.Warn("Request reached tenant middleware without a tenant",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				writeTenantError(w, http.StatusUnauthorized, "missing_tenant", "A tenant-scoped token is required")
				return
			}

			scope, err := db.WithTenant(r.Context(), tenantID)
			if err != nil {
				logger.Error("Failed to bind tenant connection",
					zap.String("tenant_id", tenantID.String()),
					zap.Error(err))
				writeTenantError(w, http.StatusServiceUnavailable, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetTenantScope(r.Context(), scope)))
		}
	}
}

// writeTenantError matches the handlers' error body shape.
func writeTenantError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
