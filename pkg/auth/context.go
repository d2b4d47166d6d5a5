package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetUserIDFromContext returns the subject of the claims in ctx, or "".
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return ""
	}
	return claims.Subject
}

// GetTenantIDFromContext returns the tenant of the claims in ctx, or uuid.Nil
// when absent or malformed.
func GetTenantIDFromContext(ctx context.Context) uuid.UUID {
	claims, ok := GetClaims(ctx)
	if !ok || claims.TenantID == "" {
		return uuid.Nil
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return uuid.Nil
	}
	return tenantID
}

// RequireTenantIDFromContext is GetTenantIDFromContext that fails on uuid.Nil.
func RequireTenantIDFromContext(ctx context.Context) (uuid.UUID, error) {
	tenantID := GetTenantIDFromContext(ctx)
	if tenantID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("tenant ID not found in context")
	}
	return tenantID, nil
}
