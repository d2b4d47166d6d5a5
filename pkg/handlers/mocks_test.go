package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// mockConnectionService is a configurable services.ConnectionService.
type mockConnectionService struct {
	conns       []*models.DataConnection
	conn        *models.DataConnection
	err         error
	testResult  *models.ConnectionTestResult
	schema      *models.SchemaInfo
	types       []datasource.AdapterInfo
	lastInput   services.ConnectionInput
	lastTenant  uuid.UUID
	lastID      uuid.UUID
	deleteCalls int
}

func (m *mockConnectionService) Create(_ context.Context, tenantID uuid.UUID, in services.ConnectionInput) (*models.DataConnection, error) {
	m.lastTenant, m.lastInput = tenantID, in
	if m.err != nil {
		return nil, m.err
	}
	return &models.DataConnection{ID: uuid.New(), TenantID: tenantID, Name: in.Name, Type: in.Type, Config: in.Config, IsDefault: in.IsDefault}, nil
}

func (m *mockConnectionService) Update(_ context.Context, tenantID, id uuid.UUID, in services.ConnectionInput) (*models.DataConnection, error) {
	m.lastTenant, m.lastID, m.lastInput = tenantID, id, in
	if m.err != nil {
		return nil, m.err
	}
	return &models.DataConnection{ID: id, TenantID: tenantID, Name: in.Name, Type: in.Type, Config: in.Config}, nil
}

func (m *mockConnectionService) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.lastTenant, m.lastID = tenantID, id
	m.deleteCalls++
	return m.err
}

func (m *mockConnectionService) Get(_ context.Context, tenantID, id uuid.UUID) (*models.DataConnection, error) {
	m.lastTenant, m.lastID = tenantID, id
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func (m *mockConnectionService) List(_ context.Context, tenantID uuid.UUID) ([]*models.DataConnection, error) {
	m.lastTenant = tenantID
	return m.conns, m.err
}

func (m *mockConnectionService) Test(_ context.Context, tenantID, id uuid.UUID) (*models.ConnectionTestResult, error) {
	m.lastTenant, m.lastID = tenantID, id
	return m.testResult, m.err
}

func (m *mockConnectionService) TestConfig(_ context.Context, connType models.ConnectionType, cfg models.ConnectionConfig) (*models.ConnectionTestResult, error) {
	m.lastInput = services.ConnectionInput{Type: connType, Config: cfg}
	return m.testResult, m.err
}

func (m *mockConnectionService) GetSchema(_ context.Context, tenantID, id uuid.UUID) (*models.SchemaInfo, error) {
	m.lastTenant, m.lastID = tenantID, id
	return m.schema, m.err
}

func (m *mockConnectionService) ListTypes() []datasource.AdapterInfo { return m.types }

// mockOrchestrator returns a canned response and captures the request.
type mockOrchestrator struct {
	resp    *models.AIQueryResponse
	lastReq services.AIQueryRequest
	calls   int
}

func (m *mockOrchestrator) ExecuteAIQuery(_ context.Context, req services.AIQueryRequest) *models.AIQueryResponse {
	m.calls++
	m.lastReq = req
	return m.resp
}

// mockHistoryService serves records from memory.
type mockHistoryService struct {
	records     []*models.AIQueryResult
	lastFilters models.HistoryFilters
	err         error
}

func (m *mockHistoryService) List(_ context.Context, _ uuid.UUID, filters models.HistoryFilters) ([]*models.AIQueryResult, error) {
	m.lastFilters = filters
	return m.records, m.err
}

func (m *mockHistoryService) Get(_ context.Context, tenantID, id uuid.UUID) (*models.AIQueryResult, error) {
	for _, r := range m.records {
		if r.ID == id && r.TenantID == tenantID {
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// staticAuthService authenticates every request as claims.
type staticAuthService struct {
	claims *auth.Claims
}

func (s *staticAuthService) ValidateRequest(*http.Request) (*auth.Claims, string, error) {
	if s.claims == nil {
		return nil, "", auth.ErrMissingAuthorization
	}
	return s.claims, "token", nil
}

func (s *staticAuthService) RequireTenantID(claims *auth.Claims) error {
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return auth.ErrInvalidTenantID
	}
	return nil
}

// passthroughTenant stands in for database.WithTenantContext.
func passthroughTenant(next http.HandlerFunc) http.HandlerFunc { return next }

// withTenant returns r carrying claims for tenantID.
func withTenant(r *http.Request, tenantID uuid.UUID, roles ...string) *http.Request {
	claims := &auth.Claims{TenantID: tenantID.String(), Roles: roles}
	claims.Subject = "user-1"
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

var (
	_ services.ConnectionService = (*mockConnectionService)(nil)
	_ services.QueryOrchestrator = (*mockOrchestrator)(nil)
	_ services.HistoryService    = (*mockHistoryService)(nil)
	_ auth.AuthService           = (*staticAuthService)(nil)
)
