// Package audit logs security-relevant events of the query pipeline in a
// structured form for SIEM consumption.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventQueryRejected is logged when a generated query fails the read-only guard.
	EventQueryRejected SecurityEventType = "generated_query_rejected"
	// EventInjectionAttempt is logged when libinjection flags a generated API parameter.
	EventInjectionAttempt SecurityEventType = "api_parameter_injection"
	// EventConfirmationOverride is logged when a caller confirms a low-confidence translation.
	EventConfirmationOverride SecurityEventType = "low_confidence_confirmed"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// maxLoggedText bounds questions and queries copied into audit events.
const maxLoggedText = 500

// QueryContext identifies the attempt an event belongs to.
type QueryContext struct {
	TenantID       uuid.UUID
	ConnectionID   uuid.UUID
	UserID         string
	Question       string
	GeneratedQuery string
}

// SecurityEvent is one auditable event.
type SecurityEvent struct {
	Timestamp    time.Time         `json:"timestamp"`
	EventType    SecurityEventType `json:"event_type"`
	TenantID     uuid.UUID         `json:"tenant_id"`
	ConnectionID uuid.UUID         `json:"connection_id"`
	UserID       string            `json:"user_id,omitempty"`
	Details      map[string]any    `json:"details"`
	Severity     string            `json:"severity"`
}

// SecurityAuditor writes security events to a dedicated "security_audit" logger.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit"), now: time.Now}
}

// LogQueryRejected records a generated query the guard refused to run. Pattern
// matches (UNION SELECT, statement chaining) are critical; destructive keywords
// are usually a misread question and logged as warnings.
func (a *SecurityAuditor) LogQueryRejected(ctx context.Context, q QueryContext, reason error) {
	severity := SeverityWarning
	details := map[string]any{
		"question":        logging.TruncateString(q.Question, maxLoggedText),
		"generated_query": logging.TruncateString(logging.SanitizeQuery(q.GeneratedQuery), maxLoggedText),
		"reason":          reason.Error(),
	}

	var sanErr *sqlguard.SanitizationError
	if errors.As(reason, &sanErr) {
		if sanErr.Pattern != "" {
			severity = SeverityCritical
			details["pattern"] = sanErr.Pattern
		} else {
			details["keyword"] = sanErr.Keyword
		}
	}

	a.log(ctx, EventQueryRejected, severity, q, details, "Generated query rejected")
}

// LogInjectionAttempt records API call parameters flagged by libinjection.
// Offending values are not logged, only their paths and fingerprints.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, q QueryContext, injErr *sqlguard.InjectionError) {
	params := make([]map[string]string, 0, len(injErr.Results))
	for _, r := range injErr.Results {
		params = append(params, map[string]string{"param": r.ParamName, "fingerprint": r.Fingerprint})
	}

	a.log(ctx, EventInjectionAttempt, SeverityCritical, q, map[string]any{
		"question":   logging.TruncateString(q.Question, maxLoggedText),
		"parameters": params,
	}, "SQL injection pattern in generated API call")
}

// LogConfirmationOverride records a caller running a translation that was
// below the confidence threshold.
func (a *SecurityAuditor) LogConfirmationOverride(ctx context.Context, q QueryContext, confidence, threshold float64) {
	a.log(ctx, EventConfirmationOverride, SeverityInfo, q, map[string]any{
		"generated_query": logging.TruncateString(logging.SanitizeQuery(q.GeneratedQuery), maxLoggedText),
		"confidence":      confidence,
		"threshold":       threshold,
	}, "Low-confidence query confirmed by caller")
}

func (a *SecurityAuditor) log(ctx context.Context, eventType SecurityEventType, severity string, q QueryContext, details map[string]any, msg string) {
	userID := q.UserID
	if userID == "" {
		userID = auth.GetUserIDFromContext(ctx)
	}

	event := SecurityEvent{
		Timestamp:    a.now().UTC(),
		EventType:    eventType,
		TenantID:     q.TenantID,
		ConnectionID: q.ConnectionID,
		UserID:       userID,
		Details:      details,
		Severity:     severity,
	}
	eventJSON, _ := json.Marshal(event)

	fields := []zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(eventType)),
		zap.String("tenant_id", q.TenantID.String()),
		zap.String("connection_id", q.ConnectionID.String()),
		zap.String("user_id", userID),
		zap.String("severity", severity),
	}

	switch severity {
	case SeverityCritical:
		a.logger.Error(msg, fields...)
	case SeverityWarning:
		a.logger.Warn(msg, fields...)
	default:
		a.logger.Info(msg, fields...)
	}
}
