package database

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestWithTenantContext_RejectsMissingTenant(t *testing.T) {
	called := false
	// The DB is never touched when the tenant is missing.
	handler := WithTenantContext(nil, zap.NewNop())(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/connections", nil))

	if called {
		t.Fatal("handler must not run without a tenant")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "missing_tenant" {
		t.Errorf("expected error missing_tenant, got %q", body["error"])
	}
}

func TestTenantScope_CloseIsIdempotent(t *testing.T) {
	var nilScope *TenantScope
	nilScope.Close()

	scope := &TenantScope{}
	scope.Close()
	scope.Close()
}
