package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// SchemaCache remembers introspected schemas between questions against the
// same connection. Lookups that fail for any reason are misses.
type SchemaCache interface {
	Get(ctx context.Context, conn *models.DataConnection) (*models.SchemaInfo, bool)
	Put(ctx context.Context, conn *models.DataConnection, schema *models.SchemaInfo)
}

// NoopSchemaCache never hits.
type NoopSchemaCache struct{}

func (NoopSchemaCache) Get(context.Context, *models.DataConnection) (*models.SchemaInfo, bool) {
	return nil, false
}

func (NoopSchemaCache) Put(context.Context, *models.DataConnection, *models.SchemaInfo) {}

// RedisStore is the subset of the go-redis client the cache uses.
type RedisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type redisSchemaCache struct {
	store  RedisStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSchemaCache stores schemas as JSON under a key that includes the
// connection's last update time, so editing a connection never serves a
// schema read with the old settings.
func NewRedisSchemaCache(store RedisStore, ttl time.Duration, logger *zap.Logger) SchemaCache {
	return &redisSchemaCache{
		store:  store,
		ttl:    ttl,
		logger: logger.Named("schema_cache"),
	}
}

func schemaCacheKey(conn *models.DataConnection) string {
	return fmt.Sprintf("ekaya-query:schema:%s:%s:%d", conn.TenantID, conn.ID, conn.UpdatedAt.UnixNano())
}

func (c *redisSchemaCache) Get(ctx context.Context, conn *models.DataConnection) (*models.SchemaInfo, bool) {
	raw, err := c.store.Get(ctx, schemaCacheKey(conn)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Schema cache read failed", zap.String("connection_id", conn.ID.String()), zap.Error(err))
		}
		return nil, false
	}

	var schema models.SchemaInfo
	if err := json.Unmarshal(raw, &schema); err != nil {
		c.logger.Warn("Discarding unreadable cached schema", zap.String("connection_id", conn.ID.String()), zap.Error(err))
		return nil, false
	}
	return &schema, true
}

func (c *redisSchemaCache) Put(ctx context.Context, conn *models.DataConnection, schema *models.SchemaInfo) {
	raw, err := json.Marshal(schema)
	if err != nil {
		c.logger.Warn("Failed to encode schema for cache", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, schemaCacheKey(conn), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Schema cache write failed", zap.String("connection_id", conn.ID.String()), zap.Error(err))
	}
}

var (
	_ SchemaCache = NoopSchemaCache{}
	_ SchemaCache = (*redisSchemaCache)(nil)
)
