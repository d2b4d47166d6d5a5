package sqlserver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	tablesQuery = `
	SELECT SCHEMA_NAME(t.schema_id) AS table_schema, t.name AS table_name
	FROM sys.tables t
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema, table_name`

	columnsQuery = `
	SELECT
	    c.name AS column_name,
	    tp.name AS data_type,
	    c.is_nullable,
	    OBJECT_DEFINITION(c.default_object_id) AS column_default
	FROM sys.columns c
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
	ORDER BY c.column_id`
)

type tableRef struct {
	schema, name string
}

func (t tableRef) displayName() string {
	if t.schema == "dbo" {
		return t.name
	}
	return t.schema + "." + t.name
}

// GetSchemaInfo lists user tables with their columns. Tables in dbo are
// reported by bare name.
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

	refs, err := listTables(ctx, db)
	if err != nil {
		return nil, err
	}

	tables := make([]models.TableInfo, 0, len(refs))
	for _, ref := range refs {
		columns, err := listColumns(ctx, db, ref)
		if err != nil {
			return nil, err
		}
		tables = append(tables, models.TableInfo{Name: ref.displayName(), Columns: columns})
	}
	return models.NewSchemaInfo(tables), nil
}

func listTables(ctx context.Context, db *sql.DB) ([]tableRef, error) {
	rows, err := db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var refs []tableRef
	for rows.Next() {
		var ref tableRef
		if err := rows.Scan(&ref.schema, &ref.name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return refs, nil
}

func listColumns(ctx context.Context, db *sql.DB, ref tableRef) ([]models.ColumnInfo, error) {
	rows, err := db.QueryContext(ctx, columnsQuery,
		sql.Named("schema", ref.schema),
		sql.Named("table", ref.name),
	)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", ref.displayName(), err)
	}
	defer rows.Close()

	columns := make([]models.ColumnInfo, 0)
	for rows.Next() {
		var (
			name, dataType string
			nullable       bool
			defaultValue   sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &nullable, &defaultValue); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col := models.ColumnInfo{Name: name, Type: dataType, Nullable: nullable}
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
