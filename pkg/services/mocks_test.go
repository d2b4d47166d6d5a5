package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
)

// mockConnectionRepository is an in-memory ConnectionRepository.
type mockConnectionRepository struct {
	mu        sync.Mutex
	conns     map[uuid.UUID]*models.DataConnection
	encrypted map[uuid.UUID]string
	order     []uuid.UUID

	getErr          error
	clearDefaultErr error
	clearedFor      []uuid.UUID
	testStatuses    map[uuid.UUID]models.ConnectionStatus
}

func newMockConnectionRepository() *mockConnectionRepository {
	return &mockConnectionRepository{
		conns:        make(map[uuid.UUID]*models.DataConnection),
		encrypted:    make(map[uuid.UUID]string),
		testStatuses: make(map[uuid.UUID]models.ConnectionStatus),
	}
}

func (m *mockConnectionRepository) Create(_ context.Context, conn *models.DataConnection, encryptedConfig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.conns {
		if existing.TenantID == conn.TenantID && existing.Name == conn.Name {
			return apperrors.ErrConflict
		}
	}
	conn.ID = uuid.New()
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	stored := *conn
	stored.Config = nil
	m.conns[conn.ID] = &stored
	m.encrypted[conn.ID] = encryptedConfig
	m.order = append(m.order, conn.ID)
	return nil
}

func (m *mockConnectionRepository) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.DataConnection, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, "", m.getErr
	}
	conn, ok := m.conns[id]
	if !ok || conn.TenantID != tenantID {
		return nil, "", apperrors.ErrNotFound
	}
	out := *conn
	return &out, m.encrypted[id], nil
}

func (m *mockConnectionRepository) List(_ context.Context, tenantID uuid.UUID) ([]*models.DataConnection, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var conns []*models.DataConnection
	var configs []string
	for _, id := range m.order {
		conn, ok := m.conns[id]
		if !ok || conn.TenantID != tenantID {
			continue
		}
		out := *conn
		conns = append(conns, &out)
		configs = append(configs, m.encrypted[id])
	}
	return conns, configs, nil
}

func (m *mockConnectionRepository) Update(_ context.Context, conn *models.DataConnection, encryptedConfig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.conns[conn.ID]
	if !ok || existing.TenantID != conn.TenantID {
		return apperrors.ErrNotFound
	}
	stored := *conn
	stored.Config = nil
	m.conns[conn.ID] = &stored
	m.encrypted[conn.ID] = encryptedConfig
	return nil
}

func (m *mockConnectionRepository) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok || conn.TenantID != tenantID {
		return apperrors.ErrNotFound
	}
	delete(m.conns, id)
	delete(m.encrypted, id)
	return nil
}

func (m *mockConnectionRepository) ClearDefault(_ context.Context, tenantID, keepID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearedFor = append(m.clearedFor, keepID)
	if m.clearDefaultErr != nil {
		return m.clearDefaultErr
	}
	for id, conn := range m.conns {
		if conn.TenantID == tenantID && id != keepID {
			conn.IsDefault = false
		}
	}
	return nil
}

func (m *mockConnectionRepository) UpdateTestStatus(_ context.Context, tenantID, id uuid.UUID, status models.ConnectionStatus, testedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[id]
	if !ok || conn.TenantID != tenantID {
		return apperrors.ErrNotFound
	}
	conn.Status = status
	conn.LastTestedAt = &testedAt
	m.testStatuses[id] = status
	return nil
}

// mockHistoryRepository records every inserted attempt.
type mockHistoryRepository struct {
	mu        sync.Mutex
	records   []models.AIQueryResult
	insertErr error
	// insertCtxErr captures ctx.Err() as seen by Insert.
	insertCtxErr error
	lastFilters  models.HistoryFilters
}

func (m *mockHistoryRepository) Insert(ctx context.Context, record *models.AIQueryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCtxErr = ctx.Err()
	if m.insertErr != nil {
		return m.insertErr
	}
	record.ID = uuid.New()
	record.CreatedAt = time.Now()
	m.records = append(m.records, *record)
	return nil
}

func (m *mockHistoryRepository) List(_ context.Context, tenantID uuid.UUID, filters models.HistoryFilters) ([]*models.AIQueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilters = filters
	out := []*models.AIQueryResult{}
	for i := range m.records {
		if m.records[i].TenantID == tenantID {
			out = append(out, &m.records[i])
		}
	}
	return out, nil
}

func (m *mockHistoryRepository) GetByID(_ context.Context, tenantID, id uuid.UUID) (*models.AIQueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id && m.records[i].TenantID == tenantID {
			out := m.records[i]
			return &out, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockHistoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockHistoryRepository) last() models.AIQueryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[len(m.records)-1]
}

// mockAdapter is a configurable datasource.Adapter that counts calls.
type mockAdapter struct {
	mu sync.Mutex

	testResult *models.ConnectionTestResult
	schema     *models.SchemaInfo
	schemaErr  error
	rows       []models.Row
	execErr    error
	// execFunc overrides rows/execErr when set.
	execFunc func(ctx context.Context, query string) ([]models.Row, error)

	schemaCalls int
	execCalls   int
	queries     []string
}

func (a *mockAdapter) TestConnection(_ context.Context, _ models.ConnectionConfig) *models.ConnectionTestResult {
	if a.testResult != nil {
		return a.testResult
	}
	return &models.ConnectionTestResult{Success: true, Message: "ok"}
}

func (a *mockAdapter) GetSchemaInfo(_ context.Context, _ models.ConnectionConfig) (*models.SchemaInfo, error) {
	a.mu.Lock()
	a.schemaCalls++
	a.mu.Unlock()
	if a.schemaErr != nil {
		return nil, a.schemaErr
	}
	if a.schema == nil {
		return models.NewSchemaInfo(nil), nil
	}
	return a.schema, nil
}

func (a *mockAdapter) ExecuteQuery(ctx context.Context, _ models.ConnectionConfig, query string) ([]models.Row, error) {
	a.mu.Lock()
	a.execCalls++
	a.queries = append(a.queries, query)
	a.mu.Unlock()
	if a.execFunc != nil {
		return a.execFunc(ctx, query)
	}
	return a.rows, a.execErr
}

func (a *mockAdapter) SanitizeQuery(query string) (string, error) { return query, nil }

func (a *mockAdapter) executions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.execCalls
}

// mockRequestAdapter also accepts structured API requests.
type mockRequestAdapter struct {
	mockAdapter
	requests []datasource.APIRequest
}

func (a *mockRequestAdapter) ExecuteRequest(_ context.Context, _ models.ConnectionConfig, req datasource.APIRequest) ([]models.Row, error) {
	a.mu.Lock()
	a.execCalls++
	a.requests = append(a.requests, req)
	a.mu.Unlock()
	return a.rows, a.execErr
}

// mockAdapterFactory hands out the same adapter for every supported type.
type mockAdapterFactory struct {
	adapter datasource.Adapter
	err     error
}

func (f *mockAdapterFactory) NewAdapter(connType models.ConnectionType) (datasource.Adapter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

func (f *mockAdapterFactory) ListTypes() []datasource.AdapterInfo {
	return []datasource.AdapterInfo{{Type: models.ConnectionTypeMySQL}}
}

// staticCatalog returns fixed endpoints.
type staticCatalog struct {
	endpoints []models.APIEndpoint
	err       error
	lookups   []string
}

func (c *staticCatalog) Lookup(_ context.Context, hostOrURL string) ([]models.APIEndpoint, error) {
	c.lookups = append(c.lookups, hostOrURL)
	return c.endpoints, c.err
}

var (
	_ repositories.ConnectionRepository = (*mockConnectionRepository)(nil)
	_ repositories.HistoryRepository    = (*mockHistoryRepository)(nil)
	_ datasource.Adapter                = (*mockAdapter)(nil)
	_ datasource.RequestExecutor        = (*mockRequestAdapter)(nil)
	_ datasource.AdapterFactory         = (*mockAdapterFactory)(nil)
	_ EndpointCatalog                   = (*staticCatalog)(nil)
)
