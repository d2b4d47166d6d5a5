package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// tenantSetting is the session variable the row level security policies read.
const tenantSetting = "app.current_tenant_id"

const resetTimeout = 2 * time.Second

// ErrNoTenant is returned when a scope is requested without a tenant.
var ErrNoTenant = errors.New("tenant id is required")

// TenantScope is a pooled connection bound to one tenant. Row level security
// limits every statement on Conn to that tenant's rows.
type TenantScope struct {
	TenantID uuid.UUID
	Conn     *pgxpool.Conn
}

// Close clears the tenant and returns the connection to the pool. If the
// clear fails the connection is closed instead, so a tenant binding never
// reaches the next borrower. Safe to call more than once.
func (s *TenantScope) Close() {
	if s == nil || s.Conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	if _, err := s.Conn.Exec(ctx, "SELECT set_config($1, '', false)", tenantSetting); err != nil {
		_ = s.Conn.Conn().Close(ctx)
	}
	s.Conn.Release()
	s.Conn = nil
}

// WithTenant acquires a connection bound to tenantID. Callers must
// defer scope.Close().
func (db *DB) WithTenant(ctx context.Context, tenantID uuid.UUID) (*TenantScope, error) {
	if tenantID == uuid.Nil {
		return nil, ErrNoTenant
	}

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT set_config($1, $2, false)", tenantSetting, tenantID.String()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("bind tenant: %w", err)
	}

	return &TenantScope{TenantID: tenantID, Conn: conn}, nil
}

// TenantContext returns ctx carrying a scope for tenantID, for work outside
// the HTTP middleware such as MCP tool calls. cleanup must be called.
func (db *DB) TenantContext(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error) {
	scope, err := db.WithTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	return SetTenantScope(ctx, scope), scope.Close, nil
}
