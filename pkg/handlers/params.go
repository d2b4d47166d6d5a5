package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
)

// ParseConnectionID extracts and validates the connection ID from the request path.
// Expects path parameter: cid
func ParseConnectionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_connection_id", "Invalid connection ID format", logger)
}

// ParseQueryID extracts and validates the history record ID from the request path.
// Expects path parameter: qid
func ParseQueryID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "qid", "invalid_query_id", "Invalid query ID format", logger)
}

func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// tenantFromRequest returns the tenant ID that auth middleware validated.
func tenantFromRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	tenantID, err := auth.RequireTenantIDFromContext(r.Context())
	if err != nil {
		writeError(w, logger, http.StatusUnauthorized, "unauthorized", "Tenant context is missing")
		return uuid.Nil, false
	}
	return tenantID, true
}

// parseIntQuery reads a non-negative integer query parameter. Absent means 0.
func parseIntQuery(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, logger, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
