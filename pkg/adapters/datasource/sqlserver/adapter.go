// Package sqlserver connects to Microsoft SQL Server and Azure SQL Database
// with SQL authentication.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // registers the sqlserver driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// Adapter provides SQL Server connectivity. Each call opens its own connection.
type Adapter struct {
	logger *zap.Logger
	open   func(connStr string) (*sql.DB, error)
}

// NewAdapter creates a SQL Server adapter.
func NewAdapter(logger *zap.Logger) *Adapter {
	return &Adapter{
		logger: logger.Named("sqlserver"),
		open: func(connStr string) (*sql.DB, error) {
			return sql.Open("sqlserver", connStr)
		},
	}
}

func (a *Adapter) connect(ctx context.Context, cfg *models.SQLConfig) (*sql.DB, error) {
	db, err := a.open(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return db, nil
}

// TestConnection verifies the server is reachable and the login lands in the
// configured database.
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
	return datasource.ProbeResult(start, err, "Connected to SQL Server database "+c.Database)
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

	var current string
	if err := db.QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(current, c.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", c.Database, current)
	}
	return nil
}

// SanitizeQuery applies the shared keyword and pattern policy.
func (a *Adapter) SanitizeQuery(query string) (string, error) {
	return sqlguard.SanitizeQuery(query)
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

var _ datasource.Adapter = (*Adapter)(nil)
