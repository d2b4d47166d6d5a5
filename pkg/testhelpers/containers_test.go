//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/database"
)

func TestTestDB_MigrationsApplied(t *testing.T) {
	testDB := GetTestDB(t)

	for _, table := range []string{"data_connections", "ai_query_history"} {
		var exists bool
		err := testDB.DB.Pool.QueryRow(context.Background(),
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)",
			table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to query %s: %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestTestDB_TenantContext(t *testing.T) {
	testDB := GetTestDB(t)
	tenantID := uuid.New()

	ctx := testDB.TenantContext(t, tenantID)

	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		t.Fatal("expected tenant scope in context")
	}

	var setting string
	if err := scope.Conn.QueryRow(ctx, "SELECT current_setting('app.current_tenant_id', true)").Scan(&setting); err != nil {
		t.Fatalf("failed to read setting: %v", err)
	}
	if setting != tenantID.String() {
		t.Errorf("expected tenant %s, got %q", tenantID, setting)
	}
}

func TestTestDB_AppRoleEnforcesTenantIsolation(t *testing.T) {
	testDB := GetTestDB(t)
	tenantA, tenantB := uuid.New(), uuid.New()

	ctxA := testDB.AppTenantContext(t, tenantA)
	scopeA, _ := database.GetTenantScope(ctxA)
	if _, err := scopeA.Conn.Exec(ctxA,
		"INSERT INTO data_connections (tenant_id, name, type, config) VALUES ($1, 'orders', 'MYSQL', 'sealed')",
		tenantA); err != nil {
		t.Fatalf("insert as tenant A: %v", err)
	}

	count := func(ctx context.Context) int {
		scope, _ := database.GetTenantScope(ctx)
		var n int
		if err := scope.Conn.QueryRow(ctx, "SELECT COUNT(*) FROM data_connections").Scan(&n); err != nil {
			t.Fatalf("count: %v", err)
		}
		return n
	}

	ctxB := testDB.AppTenantContext(t, tenantB)
	if n := count(ctxB); n != 0 {
		t.Errorf("tenant B sees %d of tenant A's connections", n)
	}
	if n := count(ctxA); n != 1 {
		t.Errorf("tenant A sees %d connections, want 1", n)
	}

	scopeB, _ := database.GetTenantScope(ctxB)
	if _, err := scopeB.Conn.Exec(ctxB,
		"INSERT INTO data_connections (tenant_id, name, type, config) VALUES ($1, 'spoofed', 'MYSQL', 'sealed')",
		tenantA); err == nil {
		t.Error("expected row level security to reject a write for another tenant")
	}
}
