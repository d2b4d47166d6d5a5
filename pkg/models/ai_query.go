package models

import (
	"time"

	"github.com/google/uuid"
)

// Row is one result record in plain key/value form.
type Row map[string]any

// QueryStatus is the final outcome of one natural-language query attempt.
type QueryStatus string

const (
	QueryStatusSuccess QueryStatus = "SUCCESS"
	QueryStatusError   QueryStatus = "ERROR"
	QueryStatusTimeout QueryStatus = "TIMEOUT"
)

// Valid reports whether s is a known status.
func (s QueryStatus) Valid() bool {
	switch s {
	case QueryStatusSuccess, QueryStatusError, QueryStatusTimeout:
		return true
	}
	return false
}

// QueryType classifies what the translator produced.
type QueryType string

const (
	QueryTypeSQL     QueryType = "SQL"
	QueryTypeAPICall QueryType = "API_CALL"
	QueryTypeError   QueryType = "ERROR"
)

// AIQueryResult is the immutable history record of one execution attempt.
type AIQueryResult struct {
	ID              uuid.UUID   `json:"id"`
	TenantID        uuid.UUID   `json:"tenant_id"`
	ConnectionID    uuid.UUID   `json:"connection_id"`
	UserID          string      `json:"user_id"`
	NaturalQuery    string      `json:"natural_query"`
	GeneratedQuery  string      `json:"generated_query"`
	Results         []Row       `json:"results"`
	ExecutionTimeMs int64       `json:"execution_time"`
	Status          QueryStatus `json:"status"`
	Error           string      `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// TranslationResult is the translator's candidate query. Never persisted on its own.
type TranslationResult struct {
	GeneratedQuery string    `json:"generated_query"`
	QueryType      QueryType `json:"query_type"`
	Confidence     float64   `json:"confidence"`
	Explanation    string    `json:"explanation,omitempty"`
	Warning        string    `json:"warning,omitempty"`

	// Cause is the underlying failure for QueryTypeError results.
	Cause error `json:"-"`
}

// APIEndpoint is one known operation of an HTTP API.
type APIEndpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// APICall is the structured form of a translated API request, or the model's
// refusal when Error is set.
type APICall struct {
	Method      string         `json:"method,omitempty"`
	Path        string         `json:"path,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Body        any            `json:"body,omitempty"`
	Description string         `json:"description,omitempty"`
	Error       string         `json:"error,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// HistoryFilters narrows a tenant's history listing.
type HistoryFilters struct {
	ConnectionID *uuid.UUID
	Status       *QueryStatus
	Limit        int
	Offset       int
}

// AIQueryResponse is what callers of the query pipeline receive: the recorded
// attempt plus translation metadata. ID is uuid.Nil when nothing was recorded.
type AIQueryResponse struct {
	AIQueryResult
	QueryType   QueryType `json:"query_type"`
	Confidence  float64   `json:"confidence"`
	Explanation string    `json:"explanation,omitempty"`
	Warning     string    `json:"warning,omitempty"`
	// NeedsConfirmation is set when execution was held back for low confidence.
	NeedsConfirmation bool `json:"needs_confirmation,omitempty"`
}
