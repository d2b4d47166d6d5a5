// Package auth validates JWTs against issuer JWKS endpoints and carries the
// resulting tenant identity through request contexts.
package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// RoleAdmin may create, change and delete connections.
const RoleAdmin = "admin"

// Claims is the token payload. RegisteredClaims supplies sub, iss, exp and
// friends; TenantID scopes every data access.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tid,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims carry any of the given roles.
func (c *Claims) HasRole(roles ...string) bool {
	for _, role := range roles {
		if slices.Contains(c.Roles, role) {
			return true
		}
	}
	return false
}

// GetClaims retrieves JWT claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// WithClaims returns a context carrying claims, as the middleware does.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithIdentity stores both the validated claims and the raw bearer token.
func WithIdentity(ctx context.Context, claims *Claims, token string) context.Context {
	return context.WithValue(WithClaims(ctx, claims), TokenKey, token)
}

// ExtractClaimsFromContext returns the tenant ID and user ID from the claims in ctx.
func ExtractClaimsFromContext(ctx context.Context) (uuid.UUID, string, error) {
	claims, ok := GetClaims(ctx)
	if !ok {
		return uuid.Nil, "", fmt.Errorf("authentication required: no claims in context")
	}

	if claims.TenantID == "" {
		return uuid.Nil, "", ErrMissingTenantID
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid tenant ID format: %w", err)
	}

	if claims.Subject == "" {
		return uuid.Nil, "", fmt.Errorf("missing user ID in JWT claims")
	}

	return tenantID, claims.Subject, nil
}
