package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

func newConnectionsMux(svc *mockConnectionService, claims *auth.Claims) *http.ServeMux {
	mux := http.NewServeMux()
	handler := NewConnectionsHandler(svc, zap.NewNop())
	handler.RegisterRoutes(mux, auth.NewMiddleware(&staticAuthService{claims: claims}, zap.NewNop()), passthroughTenant)
	return mux
}

func adminClaims(tenantID uuid.UUID) *auth.Claims {
	return &auth.Claims{TenantID: tenantID.String(), Roles: []string{auth.RoleAdmin}}
}

func decodeAPIResponse(t *testing.T, rec *httptest.ResponseRecorder, data any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.True(t, resp.Success)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestConnections_CreateDecodesTypedConfig(t *testing.T) {
	tenantID := uuid.New()
	svc := &mockConnectionService{}
	mux := newConnectionsMux(svc, adminClaims(tenantID))

	body := `{"name":"Shop","type":"MYSQL","is_default":true,"config":{"host":"db","port":3306,"database":"shop","username":"reader","password":"pw"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, tenantID, svc.lastTenant)
	assert.True(t, svc.lastInput.IsDefault)
	cfg, ok := svc.lastInput.Config.(*models.SQLConfig)
	require.True(t, ok)
	assert.Equal(t, "pw", cfg.Password)

	var created map[string]any
	decodeAPIResponse(t, rec, &created)
	assert.Equal(t, models.SecretMask, created["config"].(map[string]any)["password"], "responses must be redacted")
}

func TestConnections_CreateRejectsUnknownConfigFields(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{}, adminClaims(uuid.New()))

	body := `{"name":"Shop","type":"MYSQL","config":{"host":"db","database":"shop","username":"u","api_url":"http://x"}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_config", decodeErrorBody(t, rec)["error"])
}

func TestConnections_CreateUnsupportedType(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{}, adminClaims(uuid.New()))

	body := `{"name":"Shop","type":"ORACLE","config":{}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unsupported_type", decodeErrorBody(t, rec)["error"])
}

func TestConnections_CreateDuplicateName(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{err: apperrors.ErrConflict}, adminClaims(uuid.New()))

	body := `{"name":"Shop","type":"API_REST","config":{"api_url":"https://api.example.com","headers":[]}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConnections_MutationsRequireAdmin(t *testing.T) {
	tenantID := uuid.New()
	svc := &mockConnectionService{}
	mux := newConnectionsMux(svc, &auth.Claims{TenantID: tenantID.String(), Roles: []string{"user"}})
	id := uuid.New().String()

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/connections"},
		{http.MethodPut, "/api/connections/" + id},
		{http.MethodDelete, "/api/connections/" + id},
		{http.MethodPost, "/api/connections/" + id + "/test"},
		{http.MethodPost, "/api/connections/test"},
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(`{}`)))
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}
	assert.Equal(t, 0, svc.deleteCalls)
}

func TestConnections_RequiresAuthentication(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConnections_ListRedactsSecrets(t *testing.T) {
	tenantID := uuid.New()
	svc := &mockConnectionService{conns: []*models.DataConnection{{
		ID:     uuid.New(),
		Name:   "API",
		Type:   models.ConnectionTypeAPIRest,
		Config: &models.APIConfig{APIURL: "https://api.example.com", APIKey: "super-secret"},
	}}}
	mux := newConnectionsMux(svc, &auth.Claims{TenantID: tenantID.String()})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")
	assert.Equal(t, "super-secret", svc.conns[0].Config.(*models.APIConfig).APIKey, "stored connection must not be mutated")

	var data struct {
		Connections []map[string]any `json:"connections"`
	}
	decodeAPIResponse(t, rec, &data)
	require.Len(t, data.Connections, 1)
	assert.Equal(t, "API", data.Connections[0]["name"])
}

func TestConnections_GetNotFound(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{err: apperrors.ErrNotFound}, adminClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections/"+uuid.New().String(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnections_InvalidID(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{}, adminClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_connection_id", decodeErrorBody(t, rec)["error"])
}

func TestConnections_Delete(t *testing.T) {
	svc := &mockConnectionService{}
	mux := newConnectionsMux(svc, adminClaims(uuid.New()))
	id := uuid.New()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/connections/"+id.String(), nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, svc.lastID)
}

func TestConnections_TestFailedProbeIs200(t *testing.T) {
	svc := &mockConnectionService{testResult: &models.ConnectionTestResult{Success: false, Message: "connection refused"}}
	mux := newConnectionsMux(svc, adminClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/"+uuid.New().String()+"/test", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.ConnectionTestResult
	decodeAPIResponse(t, rec, &result)
	assert.False(t, result.Success)
	assert.Equal(t, "connection refused", result.Message)
}

func TestConnections_TestConfig(t *testing.T) {
	svc := &mockConnectionService{testResult: &models.ConnectionTestResult{Success: true, Message: "ok"}}
	mux := newConnectionsMux(svc, adminClaims(uuid.New()))

	body := `{"type":"API_REST","config":{"api_url":"https://jsonplaceholder.typicode.com","headers":[]}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/test", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.ConnectionTypeAPIRest, svc.lastInput.Type)
	assert.IsType(t, &models.APIConfig{}, svc.lastInput.Config)
}

func TestConnections_Schema(t *testing.T) {
	svc := &mockConnectionService{schema: models.NewSchemaInfo([]models.TableInfo{{Name: "users"}})}
	mux := newConnectionsMux(svc, &auth.Claims{TenantID: uuid.New().String()})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections/"+uuid.New().String()+"/schema", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var schema models.SchemaInfo
	decodeAPIResponse(t, rec, &schema)
	assert.Equal(t, 1, schema.TotalTables)
}

func TestConnections_CredentialsKeyMismatch(t *testing.T) {
	mux := newConnectionsMux(&mockConnectionService{err: apperrors.ErrCredentialsKeyMismatch}, adminClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections/"+uuid.New().String(), nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "credentials_key_mismatch", decodeErrorBody(t, rec)["error"])
}
