package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// Adapter provides PostgreSQL connectivity. Each call opens one connection
// and closes it before returning.
type Adapter struct {
	logger  *zap.Logger
	resolve Resolver
	label   string
}

// NewAdapter creates an adapter for POSTGRESQL connections.
func NewAdapter(logger *zap.Logger) *Adapter {
	return NewAdapterWithResolver(logger.Named("postgres"), ResolveSQLConfig, "PostgreSQL")
}

// NewAdapterWithResolver creates an adapter for any connection type whose
// config resolves to plain PostgreSQL settings.
func NewAdapterWithResolver(logger *zap.Logger, resolve Resolver, label string) *Adapter {
	return &Adapter{logger: logger, resolve: resolve, label: label}
}

func (a *Adapter) connect(ctx context.Context, cfg models.ConnectionConfig) (*pgx.Conn, ConnParams, error) {
	p, err := a.resolve(cfg)
	if err != nil {
		return nil, p, err
	}

	connStr := BuildConnectionString(p, int(cfg.Timeout()/time.Second))
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, p, fmt.Errorf("connect to %s: %w", a.label, err)
	}
	return conn, p, nil
}

// TestConnection verifies connectivity, database access and that the session
// is attached to the configured database.
func (a *Adapter) TestConnection(ctx context.Context, cfg models.ConnectionConfig) *models.ConnectionTestResult {
	if _, err := a.resolve(cfg); err != nil {
		return datasource.InvalidConfigResult(err)
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, cfg)
	defer cancel()

	start := time.Now()
	database, err := a.probe(ctx, cfg)
	if err != nil {
		a.logger.Info("Connection test failed", zap.String("error", logging.SanitizeError(err)))
	}
	return datasource.ProbeResult(start, err, fmt.Sprintf("Connected to %s database %s", a.label, database))
}

func (a *Adapter) probe(ctx context.Context, cfg models.ConnectionConfig) (string, error) {
	conn, p, err := a.connect(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer conn.Close(context.Background())

	if err := conn.Ping(ctx); err != nil {
		return "", fmt.Errorf("ping failed: %w", err)
	}

	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return "", fmt.Errorf("test query failed: %w", err)
	}

	var current string
	if err := conn.QueryRow(ctx, "SELECT current_database()").Scan(&current); err != nil {
		return "", fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(current, p.Database) {
		return "", fmt.Errorf("connected to wrong database: expected %q but connected to %q", p.Database, current)
	}
	return current, nil
}

// SanitizeQuery applies the shared keyword and pattern policy.
func (a *Adapter) SanitizeQuery(query string) (string, error) {
	return sqlguard.SanitizeQuery(query)
}

// ExecuteQuery sanitizes query and runs it inside a read-only transaction.
func (a *Adapter) ExecuteQuery(ctx context.Context, cfg models.ConnectionConfig, query string) ([]models.Row, error) {
	sanitized, err := a.SanitizeQuery(query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, cfg)
	defer cancel()

	conn, _, err := a.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback(context.Background())

	a.logger.Debug("Executing query", zap.String("query", logging.SanitizeQuery(sanitized)))

	rows, err := tx.Query(ctx, sanitized)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := make([]models.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		result = append(result, datasource.RowFromValues(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return result, nil
}

var _ datasource.Adapter = (*Adapter)(nil)
