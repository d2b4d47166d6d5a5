package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	tablesQuery = `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME`

	columnsQuery = `
		SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`
)

// GetSchemaInfo lists the configured database's tables, then each table's columns.
func (a *Adapter) GetSchemaInfo(ctx context.Context, cfg models.ConnectionConfig) (*models.SchemaInfo, error) {
	c, err := sqlConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := datasource.WithConnectionTimeout(ctx, c)
	defer cancel()

	db, err := a.connect(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	defer db.Close()

	names, err := listTables(ctx, db, c.Database)
	if err != nil {
		return nil, err
	}

	tables := make([]models.TableInfo, 0, len(names))
	for _, name := range names {
		columns, err := listColumns(ctx, db, c.Database, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, models.TableInfo{Name: name, Columns: columns})
	}
	return models.NewSchemaInfo(tables), nil
}

func listTables(ctx context.Context, db *sql.DB, database string) ([]string, error) {
	rows, err := db.QueryContext(ctx, tablesQuery, database)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

func listColumns(ctx context.Context, db *sql.DB, database, table string) ([]models.ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, columnsQuery, database, table)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table, err)
	}
	defer rows.Close()

	columns := make([]models.ColumnInfo, 0)
	for rows.Next() {
		var (
			name, dataType, nullable string
			defaultValue             sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &nullable, &defaultValue); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col := models.ColumnInfo{Name: name, Type: dataType, Nullable: nullable == "YES"}
		if defaultValue.Valid {
			v := defaultValue.String
			col.DefaultValue = &v
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}
