package models

import "sort"

// SchemaInfo describes the tables reachable through a connection.
// It is recomputed on demand and never persisted.
type SchemaInfo struct {
	Tables      []TableInfo `json:"tables"`
	TotalTables int         `json:"total_tables"`
}

type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	DefaultValue *string `json:"default_value,omitempty"`
}

// NewSchemaInfo builds a SchemaInfo with tables sorted by name.
func NewSchemaInfo(tables []TableInfo) *SchemaInfo {
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	if tables == nil {
		tables = []TableInfo{}
	}
	return &SchemaInfo{Tables: tables, TotalTables: len(tables)}
}

// SchemaColumn is one flattened (table, column, type) triple.
type SchemaColumn struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
}

// Flatten returns the schema as triples in table order, preserving column order.
func (s *SchemaInfo) Flatten() []SchemaColumn {
	if s == nil {
		return nil
	}
	var out []SchemaColumn
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			out = append(out, SchemaColumn{TableName: t.Name, ColumnName: c.Name, DataType: c.Type})
		}
	}
	return out
}
