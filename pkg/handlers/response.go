package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/middleware"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// ApiResponse wraps successful payloads.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response, logging encoding failures.
func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeSuccess wraps data in ApiResponse, logging encoding failures.
func writeSuccess(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeServiceError maps service sentinels to HTTP responses. Anything
// unrecognized is logged and reported as a 500 with fallback as the message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, fallback string) {
	logger = logger.With(zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrConflict):
		writeError(w, logger, http.StatusConflict, "duplicate_name", "A connection with this name already exists")
	case errors.Is(err, apperrors.ErrInvalidConfig):
		writeError(w, logger, http.StatusBadRequest, "invalid_config", err.Error())
	case errors.Is(err, apperrors.ErrUnsupportedConnectionType):
		writeError(w, logger, http.StatusBadRequest, "unsupported_type", err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		writeError(w, logger, http.StatusForbidden, "forbidden", "Insufficient permissions")
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		logger.Error("Stored connection cannot be decrypted", zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, "credentials_key_mismatch",
			"Stored credentials cannot be decrypted with the configured key")
	default:
		logger.Error(fallback, zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError, "internal_error", fallback)
	}
}

// decodeJSON decodes a bounded request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return false
	}
	return true
}
