package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

type stubAdapter struct {
	logger *zap.Logger
}

func (s *stubAdapter) TestConnection(ctx context.Context, cfg models.ConnectionConfig) *models.ConnectionTestResult {
	return &models.ConnectionTestResult{Success: true}
}

func (s *stubAdapter) GetSchemaInfo(ctx context.Context, cfg models.ConnectionConfig) (*models.SchemaInfo, error) {
	return models.NewSchemaInfo(nil), nil
}

func (s *stubAdapter) ExecuteQuery(ctx context.Context, cfg models.ConnectionConfig, query string) ([]models.Row, error) {
	return nil, nil
}

func (s *stubAdapter) SanitizeQuery(query string) (string, error) { return query, nil }

const stubType models.ConnectionType = "STUB_TEST"

func registerStub(t *testing.T) {
	t.Helper()
	Register(AdapterRegistration{
		Info: AdapterInfo{Type: stubType, DisplayName: "Stub", Dialect: "StubQL"},
		Factory: func(logger *zap.Logger) Adapter {
			return &stubAdapter{logger: logger}
		},
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, stubType)
		registryMu.Unlock()
	})
}

func TestFactory_NewAdapter_Registered(t *testing.T) {
	registerStub(t)
	logger := zaptest.NewLogger(t)

	adapter, err := NewAdapterFactory(logger).NewAdapter(stubType)
	require.NoError(t, err)

	stub, ok := adapter.(*stubAdapter)
	require.True(t, ok)
	assert.Same(t, logger, stub.logger)
}

func TestFactory_NewAdapter_UnsupportedFailsAtConstruction(t *testing.T) {
	for _, connType := range []models.ConnectionType{models.ConnectionTypeFirebase, models.ConnectionTypeAPIGraphQL, "ORACLE"} {
		_, err := NewAdapterFactory(zap.NewNop()).NewAdapter(connType)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedConnectionType)
		assert.Contains(t, err.Error(), "unsupported connection type")
	}
}

func TestRegistry_ListAndDialect(t *testing.T) {
	registerStub(t)

	assert.True(t, IsRegistered(stubType))
	assert.Equal(t, "StubQL", DialectFor(stubType))
	assert.Equal(t, "SQL", DialectFor("UNKNOWN"))

	var found bool
	for _, info := range NewAdapterFactory(zap.NewNop()).ListTypes() {
		if info.Type == stubType {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWrapValue(t *testing.T) {
	assert.Equal(t, []models.Row{{"id": float64(1)}, {"id": float64(2)}},
		WrapValue([]any{map[string]any{"id": float64(1)}, map[string]any{"id": float64(2)}}))
	assert.Equal(t, []models.Row{{"id": "x"}}, WrapValue(map[string]any{"id": "x"}))
	assert.Equal(t, []models.Row{{"value": "ok"}}, WrapValue("ok"))
	assert.Equal(t, []models.Row{{"value": float64(3)}}, WrapValue([]any{float64(3)}))
	assert.Equal(t, []models.Row{}, WrapValue(nil))
}

func TestRowFromValues_NormalizesBytes(t *testing.T) {
	row := RowFromValues([]string{"name", "n"}, []any{[]byte("alice"), int64(3)})
	assert.Equal(t, models.Row{"name": "alice", "n": int64(3)}, row)
}
