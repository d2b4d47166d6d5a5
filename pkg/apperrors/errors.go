package apperrors

import "errors"

var (
	ErrNotFound                  = errors.New("not found")
	ErrConflict                  = errors.New("conflict")
	ErrForbidden                 = errors.New("forbidden")
	ErrInvalidConfig             = errors.New("invalid connection config")
	ErrUnsupportedConnectionType = errors.New("unsupported connection type")
	ErrCredentialsKeyMismatch    = errors.New("connection config was encrypted with a different key")
	ErrLowConfidence             = errors.New("translation confidence below threshold")
)
