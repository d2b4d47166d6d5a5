package datasource

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// NormalizeValue converts driver values into JSON-friendly plain values.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return val
	}
}

// RowFromValues zips column names with values into a Row.
func RowFromValues(columns []string, values []any) models.Row {
	row := make(models.Row, len(columns))
	for i, col := range columns {
		if i < len(values) {
			row[col] = NormalizeValue(values[i])
		}
	}
	return row
}

// ScanRows reads every row of a database/sql result set. The caller closes rows.
func ScanRows(rows *sql.Rows) ([]models.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := make([]models.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, RowFromValues(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// WrapValue normalizes a decoded JSON document into records: arrays become one
// record per element, an object becomes a single record, and anything else is
// wrapped as {"value": v}.
func WrapValue(v any) []models.Row {
	switch val := v.(type) {
	case []any:
		rows := make([]models.Row, 0, len(val))
		for _, item := range val {
			if obj, ok := item.(map[string]any); ok {
				rows = append(rows, models.Row(obj))
			} else {
				rows = append(rows, models.Row{"value": item})
			}
		}
		return rows
	case map[string]any:
		return []models.Row{models.Row(val)}
	case nil:
		return []models.Row{}
	default:
		return []models.Row{{"value": val}}
	}
}
