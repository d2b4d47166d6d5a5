package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// Adapter provides MySQL connectivity. It holds no connections between calls.
type Adapter struct {
	logger *zap.Logger
	open   func(dsn string) (*sql.DB, error)
}

// NewAdapter creates a MySQL adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	return &Adapter{
		logger: logger.Named("mysql"),
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("mysql", dsn)
		},
	}
}

// connect opens a single-connection handle and pings it. On any error the
// handle is already closed.
func (a *Adapter) connect(ctx context.Context, cfg *models.SQLConfig) (*sql.DB, error) {
	db, err := a.open(buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return db, nil
}

// TestConnection pings the server, runs a trivial query and checks that the
// session landed in the configured database.
func (a *Adapter) TestConnection(ctx context.Context, cfg models.ConnectionConfig) *models.ConnectionTestResult {
	c, err := sqlConfig(cfg)
	if err != nil {
		return datasource.InvalidConfigResult(err)
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, c)
	defer cancel()

	start := time.Now()
	err = a.probe(ctx, c)
	if err != nil {
		a.logger.Info("Connection test failed",
			zap.String("host", c.Host),
			zap.String("error", logging.SanitizeError(err)))
	}
	return datasource.ProbeResult(start, err, "Connected to MySQL database "+c.Database)
}

func (a *Adapter) probe(ctx context.Context, c *models.SQLConfig) error {
	db, err := a.connect(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	var current sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(current.String, c.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", c.Database, current.String)
	}
	return nil
}

// SanitizeQuery applies the keyword policy, then requires the statement to
// parse as a read-only MySQL statement.
func (a *Adapter) SanitizeQuery(query string) (string, error) {
	normalized, err := sqlguard.SanitizeQuery(query)
	if err != nil {
		return "", err
	}
	if err := sqlguard.CheckMySQLReadOnly(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ExecuteQuery sanitizes and runs query on a fresh connection.
func (a *Adapter) ExecuteQuery(ctx context.Context, cfg models.ConnectionConfig, query string) ([]models.Row, error) {
	sanitized, err := a.SanitizeQuery(query)
	if err != nil {
		return nil, err
	}
	c, err := sqlConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, c)
	defer cancel()

	db, err := a.connect(ctx, c)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	a.logger.Debug("Executing query", zap.String("query", logging.SanitizeQuery(sanitized)))

	rows, err := db.QueryContext(ctx, sanitized)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	return datasource.ScanRows(rows)
}

var (
	_ datasource.Adapter = (*Adapter)(nil)
)
