package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
)

func newAIQueriesMux(orch *mockOrchestrator, history *mockHistoryService, claims *auth.Claims) *http.ServeMux {
	mux := http.NewServeMux()
	handler := NewAIQueriesHandler(orch, history, zap.NewNop())
	handler.RegisterRoutes(mux, auth.NewMiddleware(&staticAuthService{claims: claims}, zap.NewNop()), passthroughTenant)
	return mux
}

func memberClaims(tenantID uuid.UUID) *auth.Claims {
	claims := &auth.Claims{TenantID: tenantID.String()}
	claims.Subject = "user-42"
	return claims
}

func TestAIQueries_AskPassesTenantUserAndConfirmation(t *testing.T) {
	tenantID := uuid.New()
	connID := uuid.New()
	orch := &mockOrchestrator{resp: &models.AIQueryResponse{
		AIQueryResult: models.AIQueryResult{ID: uuid.New(), Status: models.QueryStatusSuccess, Results: []models.Row{{"n": 3}}},
		QueryType:     models.QueryTypeSQL,
		Confidence:    0.86,
	}}
	mux := newAIQueriesMux(orch, &mockHistoryService{}, memberClaims(tenantID))

	body := `{"question":"how many users?","confirmed":true}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/"+connID.String()+"/ai-query", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, orch.calls)
	assert.Equal(t, tenantID, orch.lastReq.TenantID)
	assert.Equal(t, connID, orch.lastReq.ConnectionID)
	assert.Equal(t, "user-42", orch.lastReq.UserID)
	assert.Equal(t, "how many users?", orch.lastReq.Question)
	assert.True(t, orch.lastReq.Confirmed)

	var resp models.AIQueryResponse
	decodeAPIResponse(t, rec, &resp)
	assert.Equal(t, models.QueryStatusSuccess, resp.Status)
	assert.Equal(t, 0.86, resp.Confidence)
}

func TestAIQueries_PipelineErrorIsReportedInBody(t *testing.T) {
	orch := &mockOrchestrator{resp: &models.AIQueryResponse{
		AIQueryResult: models.AIQueryResult{Status: models.QueryStatusError, Error: "connection not found"},
	}}
	mux := newAIQueriesMux(orch, &mockHistoryService{}, memberClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/"+uuid.New().String()+"/ai-query",
		bytes.NewBufferString(`{"question":"anything"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AIQueryResponse
	decodeAPIResponse(t, rec, &resp)
	assert.Equal(t, models.QueryStatusError, resp.Status)
	assert.Contains(t, resp.Error, "not found")
}

func TestAIQueries_AskRequiresQuestion(t *testing.T) {
	orch := &mockOrchestrator{}
	mux := newAIQueriesMux(orch, &mockHistoryService{}, memberClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/"+uuid.New().String()+"/ai-query",
		bytes.NewBufferString(`{"question":"  "}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_question", decodeErrorBody(t, rec)["error"])
	assert.Equal(t, 0, orch.calls)
}

func TestAIQueries_AskRejectsMalformedBody(t *testing.T) {
	orch := &mockOrchestrator{}
	mux := newAIQueriesMux(orch, &mockHistoryService{}, memberClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/connections/"+uuid.New().String()+"/ai-query",
		bytes.NewBufferString(`{"question":`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, orch.calls)
}

func TestAIQueries_ListFilters(t *testing.T) {
	history := &mockHistoryService{}
	mux := newAIQueriesMux(&mockOrchestrator{}, history, memberClaims(uuid.New()))
	connID := uuid.New()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/ai-queries?connection_id="+connID.String()+"&status=timeout&limit=10&offset=20", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, history.lastFilters.ConnectionID)
	assert.Equal(t, connID, *history.lastFilters.ConnectionID)
	require.NotNil(t, history.lastFilters.Status)
	assert.Equal(t, models.QueryStatusTimeout, *history.lastFilters.Status)
	assert.Equal(t, 10, history.lastFilters.Limit)
	assert.Equal(t, 20, history.lastFilters.Offset)

	var page ListAIQueriesResponse
	decodeAPIResponse(t, rec, &page)
	assert.NotNil(t, page.Queries)
	assert.Empty(t, page.Queries)
}

func TestAIQueries_ListClampsLimit(t *testing.T) {
	history := &mockHistoryService{}
	mux := newAIQueriesMux(&mockOrchestrator{}, history, memberClaims(uuid.New()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai-queries?limit=100000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repositories.MaxHistoryLimit, history.lastFilters.Limit)
}

func TestAIQueries_ListRejectsBadParameters(t *testing.T) {
	mux := newAIQueriesMux(&mockOrchestrator{}, &mockHistoryService{}, memberClaims(uuid.New()))

	for _, query := range []string{"status=PENDING", "limit=-1", "offset=abc", "connection_id=nope"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai-queries?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAIQueries_GetIsTenantScoped(t *testing.T) {
	tenantID := uuid.New()
	record := &models.AIQueryResult{ID: uuid.New(), TenantID: tenantID, Status: models.QueryStatusSuccess}
	history := &mockHistoryService{records: []*models.AIQueryResult{record}}

	rec := httptest.NewRecorder()
	newAIQueriesMux(&mockOrchestrator{}, history, memberClaims(tenantID)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai-queries/"+record.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	newAIQueriesMux(&mockOrchestrator{}, history, memberClaims(uuid.New())).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai-queries/"+record.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTenantFromRequest_MissingClaims(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := tenantFromRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil), zap.NewNop())

	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	tenantID := uuid.New()
	got, ok := tenantFromRequest(rec, withTenant(httptest.NewRequest(http.MethodGet, "/", nil), tenantID), zap.NewNop())
	assert.True(t, ok)
	assert.Equal(t, tenantID, got)
}
