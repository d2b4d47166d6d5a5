package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingTenantID      = errors.New("missing tenant ID in token")
	ErrInvalidTenantID      = errors.New("invalid tenant ID in token")
	ErrMissingSubject       = errors.New("missing subject in token")
)

// AuthService extracts and validates the caller's token.
type AuthService interface {
	// ValidateRequest reads a Bearer token from the Authorization header,
	// falling back to the "ekaya_jwt" cookie.
	ValidateRequest(r *http.Request) (*Claims, string, error)

	// RequireTenantID checks that the claims name a well-formed tenant.
	RequireTenantID(claims *Claims) error
}

type authService struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthService creates an AuthService backed by validator.
func NewAuthService(validator TokenValidator, logger *zap.Logger) AuthService {
	return &authService{
		validator: validator,
		logger:    logger.Named("auth"),
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	tokenString, source, err := extractToken(r)
	if err != nil {
		s.logger.Debug("No usable JWT in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Error(err))
		return nil, "", err
	}

	claims, err := s.validator.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", source))
		return nil, "", err
	}

	return claims, tokenString, nil
}

func extractToken(r *http.Request) (token, source string, err error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
			return "", "", ErrInvalidAuthFormat
		}
		return value, "header", nil
	}
	if cookie, err := r.Cookie("ekaya_jwt"); err == nil && cookie.Value != "" {
		return cookie.Value, "cookie", nil
	}
	return "", "", ErrMissingAuthorization
}

func (s *authService) RequireTenantID(claims *Claims) error {
	if claims.TenantID == "" {
		return ErrMissingTenantID
	}
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return ErrInvalidTenantID
	}
	return nil
}

var _ AuthService = (*authService)(nil)
