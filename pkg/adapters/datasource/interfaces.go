package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// Adapter is the uniform capability set over one connection family.
// Every method opens its own connection or client and releases it before
// returning, on success and failure alike.
type Adapter interface {
	// TestConnection probes the backend and measures round-trip latency.
	// Connectivity failures are reported in the result, not as an error.
	TestConnection(ctx context.Context, cfg models.ConnectionConfig) *models.ConnectionTestResult

	// GetSchemaInfo introspects tables and columns.
	GetSchemaInfo(ctx context.Context, cfg models.ConnectionConfig) (*models.SchemaInfo, error)

	// ExecuteQuery sanitizes query, runs it, and returns plain records.
	// Execution never starts when sanitization fails.
	ExecuteQuery(ctx context.Context, cfg models.ConnectionConfig, query string) ([]models.Row, error)

	// SanitizeQuery returns the query in executable form or rejects it.
	SanitizeQuery(query string) (string, error)
}

// APIRequest is a structured HTTP call against an API connection.
type APIRequest struct {
	Method string
	Path   string
	Params map[string]any
	Body   any
}

// RequestExecutor is implemented by API adapters that accept structured calls
// in addition to the "METHOD /path" query form.
type RequestExecutor interface {
	ExecuteRequest(ctx context.Context, cfg models.ConnectionConfig, req APIRequest) ([]models.Row, error)
}
