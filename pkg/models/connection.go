package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
)

// ConnectionType is the declared kind of an external data source.
type ConnectionType string

const (
	ConnectionTypeMySQL      ConnectionType = "MYSQL"
	ConnectionTypePostgreSQL ConnectionType = "POSTGRESQL"
	ConnectionTypeSupabase   ConnectionType = "SUPABASE"
	ConnectionTypeSQLServer  ConnectionType = "SQLSERVER"
	ConnectionTypeFirebase   ConnectionType = "FIREBASE"
	ConnectionTypeAPIRest    ConnectionType = "API_REST"
	ConnectionTypeAPIGraphQL ConnectionType = "API_GRAPHQL"
)

// ConnectionFamily groups connection types by how they are queried.
type ConnectionFamily string

const (
	FamilySQL      ConnectionFamily = "sql"
	FamilyAPI      ConnectionFamily = "api"
	FamilyDocument ConnectionFamily = "document"
)

// Family returns the query family for the type, or "" for unknown types.
func (t ConnectionType) Family() ConnectionFamily {
	switch t {
	case ConnectionTypeMySQL, ConnectionTypePostgreSQL, ConnectionTypeSupabase, ConnectionTypeSQLServer:
		return FamilySQL
	case ConnectionTypeAPIRest, ConnectionTypeAPIGraphQL:
		return FamilyAPI
	case ConnectionTypeFirebase:
		return FamilyDocument
	}
	return ""
}

// Valid reports whether t is a declared connection type.
func (t ConnectionType) Valid() bool {
	return t.Family() != ""
}

// ConnectionStatus reflects the outcome of the most recent connection test.
type ConnectionStatus string

const (
	ConnectionStatusActive   ConnectionStatus = "ACTIVE"
	ConnectionStatusInactive ConnectionStatus = "INACTIVE"
	ConnectionStatusError    ConnectionStatus = "ERROR"
)

// DataConnection is a tenant-scoped description of how to reach one external
// data source. Config is held decrypted in memory only; the store keeps it encrypted.
type DataConnection struct {
	ID           uuid.UUID        `json:"id"`
	TenantID     uuid.UUID        `json:"tenant_id"`
	Name         string           `json:"name"`
	Type         ConnectionType   `json:"type"`
	Status       ConnectionStatus `json:"status"`
	Config       ConnectionConfig `json:"config"`
	IsDefault    bool             `json:"is_default"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	LastTestedAt *time.Time       `json:"last_tested_at,omitempty"`
}

// UnmarshalJSON decodes Config into the variant selected by Type.
func (c *DataConnection) UnmarshalJSON(data []byte) error {
	type alias DataConnection
	aux := struct {
		*alias
		Config json.RawMessage `json:"config"`
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Config) == 0 || string(aux.Config) == "null" {
		c.Config = nil
		return nil
	}

	cfg, err := DecodeConfig(c.Type, aux.Config)
	if err != nil {
		return err
	}
	c.Config = cfg
	return nil
}

// Redacted returns a shallow copy safe to return to API callers.
func (c *DataConnection) Redacted() *DataConnection {
	out := *c
	if c.Config != nil {
		out.Config = c.Config.Redacted()
	}
	return &out
}

// ConnectionTestResult is the outcome of a connectivity probe.
type ConnectionTestResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LatencyMs *int64 `json:"latency_ms,omitempty"`
}

// ErrUnsupportedType wraps apperrors.ErrUnsupportedConnectionType with the offending type.
func ErrUnsupportedType(t ConnectionType) error {
	return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedConnectionType, t)
}
