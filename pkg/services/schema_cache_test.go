package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/llm"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// fakeRedis keeps values in memory and records the TTL of each write.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	readErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (r *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return redis.NewStringResult("", r.readErr)
	}
	v, ok := r.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (r *fakeRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		r.values[key] = string(v)
	case string:
		r.values[key] = v
	}
	r.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func cachedConnection() *models.DataConnection {
	return &models.DataConnection{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisSchemaCache_RoundTrip(t *testing.T) {
	store := newFakeRedis()
	cache := NewRedisSchemaCache(store, 5*time.Minute, zap.NewNop())
	conn := cachedConnection()

	_, ok := cache.Get(context.Background(), conn)
	assert.False(t, ok)

	cache.Put(context.Background(), conn, usersSchema())
	got, ok := cache.Get(context.Background(), conn)
	require.True(t, ok)
	assert.Equal(t, usersSchema(), got)
	assert.Equal(t, 5*time.Minute, store.ttls[schemaCacheKey(conn)])
}

func TestRedisSchemaCache_KeyFollowsConnectionUpdates(t *testing.T) {
	cache := NewRedisSchemaCache(newFakeRedis(), time.Minute, zap.NewNop())
	conn := cachedConnection()
	cache.Put(context.Background(), conn, usersSchema())

	edited := *conn
	edited.UpdatedAt = conn.UpdatedAt.Add(time.Second)
	_, ok := cache.Get(context.Background(), &edited)
	assert.False(t, ok, "an edited connection must not reuse the old schema")

	other := *conn
	other.TenantID = uuid.New()
	_, ok = cache.Get(context.Background(), &other)
	assert.False(t, ok, "schemas never cross tenants")
}

func TestRedisSchemaCache_FailuresAreMisses(t *testing.T) {
	store := newFakeRedis()
	cache := NewRedisSchemaCache(store, time.Minute, zap.NewNop())
	conn := cachedConnection()

	store.values[schemaCacheKey(conn)] = "{not json"
	_, ok := cache.Get(context.Background(), conn)
	assert.False(t, ok)

	store.readErr = errors.New("connection reset")
	_, ok = cache.Get(context.Background(), conn)
	assert.False(t, ok)
}

func TestExecuteAIQuery_ReusesCachedSchema(t *testing.T) {
	adapter := &mockAdapter{schema: usersSchema(), rows: []models.Row{{"n": int64(3)}}}
	client := llm.NewMockLLMClient("SELECT COUNT(*) AS n FROM users")
	f := newOrchestratorFixture(t, models.ConnectionTypeMySQL, mysqlConfig(), adapter, client, defaultQueryConfig())
	f.orch.schemas = NewRedisSchemaCache(newFakeRedis(), time.Minute, zap.NewNop())

	first := f.ask("how many users?")
	second := f.ask("how many users are there?")

	require.Equal(t, models.QueryStatusSuccess, first.Status, first.Error)
	require.Equal(t, models.QueryStatusSuccess, second.Status, second.Error)
	assert.Equal(t, 1, adapter.schemaCalls, "second question should use the cached schema")
	assert.Equal(t, 2, adapter.executions())
}
