package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/mcp"
	mcpauth "github.com/ekaya-inc/ekaya-query/pkg/mcp/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/mcp/tools"
)

func newTestMCPMux(t *testing.T, claims *auth.Claims) *http.ServeMux {
	t.Helper()
	logger := zap.NewNop()
	mcpServer := mcp.NewServer("test", "test-version", logger)
	tools.RegisterHealthTool(mcpServer.MCP(), "test-version", nil)

	mux := http.NewServeMux()
	NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, mcpauth.NewMiddleware(&staticAuthService{claims: claims}, logger))
	return mux
}

func postMCP(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMCPHandler_ToolsList(t *testing.T) {
	mux := newTestMCPMux(t, &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, TenantID: uuid.NewString()})

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["jsonrpc"] != "2.0" {
		t.Errorf("expected jsonrpc 2.0, got %v", response["jsonrpc"])
	}
	if response["id"] != float64(1) {
		t.Errorf("expected id 1, got %v", response["id"])
	}
}

func TestMCPHandler_ToolsCall(t *testing.T) {
	mux := newTestMCPMux(t, &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, TenantID: uuid.NewString()})

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"health"},"id":1}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response struct {
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Result.Content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(response.Result.Content))
	}
	var health map[string]string
	if err := json.Unmarshal([]byte(response.Result.Content[0].Text), &health); err != nil {
		t.Fatalf("failed to parse health payload: %v", err)
	}
	if health["status"] != "ok" || health["version"] != "test-version" {
		t.Errorf("unexpected health payload: %v", health)
	}
}

func TestMCPHandler_RejectsNonPOST(t *testing.T) {
	mux := newTestMCPMux(t, &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, TenantID: uuid.NewString()})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, "/mcp", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
			t.Errorf("%s: expected Allow: POST, got %q", method, allow)
		}
	}
}

func TestMCPHandler_RequiresAuth(t *testing.T) {
	mux := newTestMCPMux(t, nil)

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestMCPHandler_RequiresTenant(t *testing.T) {
	mux := newTestMCPMux(t, &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, TenantID: "not-a-uuid"})

	rec := postMCP(mux, `{"jsonrpc":"2.0","method":"tools/list","id":1}`)

	if rec.Code == http.StatusOK {
		t.Fatal("expected request without a valid tenant to be rejected")
	}
}
