package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

const (
	tablesQuery = `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type IN ('BASE TABLE', 'VIEW')
		  AND table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY table_schema, table_name`

	columnsQuery = `
		SELECT column_name, data_type, is_nullable = 'YES', column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`
)

type tableRef struct {
	schema string
	name   string
}

// displayName omits the default public schema.
func (t tableRef) displayName() string {
	if t.schema == "public" || t.schema == "" {
		return t.name
	}
	return t.schema + "." + t.name
}

// GetSchemaInfo lists user tables and views, then each one's columns.
func (a *Adapter) GetSchemaInfo(ctx context.Context, cfg models.ConnectionConfig) (*models.SchemaInfo, error) {
	ctx, cancel := datasource.WithConnectionTimeout(ctx, cfg)
	defer cancel()

	conn, _, err := a.connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	defer conn.Close(context.Background())

	refs, err := listTables(ctx, conn)
	if err != nil {
		return nil, err
	}

	tables := make([]models.TableInfo, 0, len(refs))
	for _, ref := range refs {
		columns, err := listColumns(ctx, conn, ref)
		if err != nil {
			return nil, err
		}
		tables = append(tables, models.TableInfo{Name: ref.displayName(), Columns: columns})
	}
	return models.NewSchemaInfo(tables), nil
}

func listTables(ctx context.Context, conn *pgx.Conn) ([]tableRef, error) {
	rows, err := conn.Query(ctx, tablesQuery)
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

func listColumns(ctx context.Context, conn *pgx.Conn, ref tableRef) ([]models.ColumnInfo, error) {
	rows, err := conn.Query(ctx, columnsQuery, ref.schema, ref.name)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", ref.displayName(), err)
	}
	defer rows.Close()

	columns := make([]models.ColumnInfo, 0)
	for rows.Next() {
		var col models.ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.DefaultValue); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return columns, nil
}
