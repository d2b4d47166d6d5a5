package database

import "context"

type contextKey string

const tenantScopeKey contextKey = "tenantScope"

// GetTenantScope returns the scope bound by WithTenantContext or TenantContext.
// Repositories refuse to run without one.
func GetTenantScope(ctx context.Context) (*TenantScope, bool) {
	scope, ok := ctx.Value(tenantScopeKey).(*TenantScope)
	return scope, ok && scope != nil
}

func SetTenantScope(ctx context.Context, scope *TenantScope) context.Context {
	return context.WithValue(ctx, tenantScopeKey, scope)
}
