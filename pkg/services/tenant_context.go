package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/database"
)

// TenantContextFunc binds a tenant scope for work that does not pass through
// the HTTP tenant middleware, such as MCP tool calls. The returned cleanup
// must be called.
type TenantContextFunc func(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error)

func NewTenantContextFunc(db *database.DB) TenantContextFunc {
	return db.TenantContext
}
