package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query/pkg/audit"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/metrics"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

// Stage is a step of one ExecuteAIQuery run.
type Stage string

const (
	StageStarted        Stage = "STARTED"
	StageSchemaResolved Stage = "SCHEMA_RESOLVED"
	StageTranslated     Stage = "TRANSLATED"
	StageExecuted       Stage = "EXECUTED"
	StageRecorded       Stage = "RECORDED"
	StageReturned       Stage = "RETURNED"
	StageErrored        Stage = "ERRORED"
)

// historyWriteTimeout bounds the history insert, which runs detached from the
// request deadline.
const historyWriteTimeout = 5 * time.Second

// AIQueryRequest is one natural-language question against a stored connection.
type AIQueryRequest struct {
	TenantID     uuid.UUID
	ConnectionID uuid.UUID
	UserID       string
	Question     string
	// Confirmed runs a translation even when it is held back for low confidence.
	Confirmed bool
}

// QueryOrchestrator runs the question -> translation -> execution -> history pipeline.
type QueryOrchestrator interface {
	// ExecuteAIQuery never fails: every outcome is a response, with
	// Status ERROR or TIMEOUT describing what went wrong. Every attempt against
	// a resolvable connection is recorded in history exactly once.
	ExecuteAIQuery(ctx context.Context, req AIQueryRequest) *models.AIQueryResponse
}

type queryOrchestrator struct {
	connections ConnectionService
	adapters    datasource.AdapterFactory
	translator  QueryTranslator
	catalog     EndpointCatalog
	schemas     SchemaCache
	history     repositories.HistoryRepository
	auditor     *audit.SecurityAuditor
	cfg         config.QueryConfig
	logger      *zap.Logger
	now         func() time.Time
	onStage     func(Stage)
}

// NewQueryOrchestrator creates the pipeline with its collaborators.
func NewQueryOrchestrator(
	connections ConnectionService,
	adapters datasource.AdapterFactory,
	translator QueryTranslator,
	catalog EndpointCatalog,
	schemas SchemaCache,
	history repositories.HistoryRepository,
	cfg config.QueryConfig,
	logger *zap.Logger,
) QueryOrchestrator {
	if schemas == nil {
		schemas = NoopSchemaCache{}
	}
	return &queryOrchestrator{
		connections: connections,
		adapters:    adapters,
		translator:  translator,
		catalog:     catalog,
		schemas:     schemas,
		history:     history,
		auditor:     audit.NewSecurityAuditor(logger),
		cfg:         cfg,
		logger:      logger.Named("orchestrator"),
		now:         time.Now,
	}
}

// queryRun carries the state of one invocation.
type queryRun struct {
	o       *queryOrchestrator
	start   time.Time
	stage   Stage
	resp    *models.AIQueryResponse
	conn    *models.DataConnection
	adapter datasource.Adapter
	apiReq  datasource.APIRequest
	logger  *zap.Logger
}

func (r *queryRun) advance(stage Stage) {
	r.stage = stage
	if r.o.onStage != nil {
		r.o.onStage(stage)
	}
}

// fail moves the run to ERRORED with a caller-facing message.
func (r *queryRun) fail(ctx context.Context, message string, err error) {
	if err != nil {
		message = message + ": " + logging.ErrorMessage(err)
	}
	r.failWithMessage(ctx, message, err)
}

// failWithMessage records message as is; cause only decides ERROR vs TIMEOUT.
func (r *queryRun) failWithMessage(ctx context.Context, message string, cause error) {
	r.resp.Status = models.QueryStatusError
	if isTimeout(ctx, cause) {
		r.resp.Status = models.QueryStatusTimeout
	}
	r.resp.Error = message

	r.logger.Info("AI query failed",
		zap.String("stage", string(r.stage)),
		zap.String("status", string(r.resp.Status)),
		zap.String("error", message))
	r.advance(StageErrored)
}

func (r *queryRun) auditContext() audit.QueryContext {
	return audit.QueryContext{
		TenantID:       r.resp.TenantID,
		ConnectionID:   r.resp.ConnectionID,
		UserID:         r.resp.UserID,
		Question:       r.resp.NaturalQuery,
		GeneratedQuery: r.resp.GeneratedQuery,
	}
}

func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func (o *queryOrchestrator) ExecuteAIQuery(ctx context.Context, req AIQueryRequest) *models.AIQueryResponse {
	run := &queryRun{
		o:     o,
		start: o.now(),
		resp: &models.AIQueryResponse{
			AIQueryResult: models.AIQueryResult{
				TenantID:     req.TenantID,
				ConnectionID: req.ConnectionID,
				UserID:       req.UserID,
				NaturalQuery: req.Question,
				Status:       models.QueryStatusError,
			},
		},
		logger: o.logger.With(
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("connection_id", req.ConnectionID.String())),
	}
	run.advance(StageStarted)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	if !o.resolve(ctx, run, req) {
		// Nothing to attribute the attempt to, so nothing is recorded.
		run.resp.ExecutionTimeMs = o.now().Sub(run.start).Milliseconds()
		metrics.ObserveQuery(string(run.resp.Status), "", o.now().Sub(run.start))
		run.advance(StageReturned)
		return run.resp
	}

	if translation := o.translate(ctx, run, req); translation != nil {
		o.execute(ctx, run, translation)
	}

	elapsed := o.now().Sub(run.start)
	run.resp.ExecutionTimeMs = elapsed.Milliseconds()
	o.record(ctx, run)
	metrics.ObserveQuery(string(run.resp.Status), string(run.resp.QueryType), elapsed)

	run.advance(StageReturned)
	return run.resp
}

// resolve validates the request and loads the connection. It reports false
// when the attempt cannot be attributed to a connection.
func (o *queryOrchestrator) resolve(ctx context.Context, run *queryRun, req AIQueryRequest) bool {
	switch {
	case req.TenantID == uuid.Nil || req.ConnectionID == uuid.Nil:
		run.fail(ctx, "tenant and connection are required", nil)
		return false
	case strings.TrimSpace(req.Question) == "":
		run.fail(ctx, "question is required", nil)
		return false
	}

	conn, err := o.connections.Get(ctx, req.TenantID, req.ConnectionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		run.fail(ctx, "connection not found", nil)
		return false
	}
	if err != nil {
		run.fail(ctx, "failed to load connection", err)
		return true
	}
	run.conn = conn

	adapter, err := o.adapters.NewAdapter(conn.Type)
	if err != nil {
		run.fail(ctx, "cannot query this connection", err)
		return true
	}
	run.adapter = adapter
	return true
}

// schema returns the connection's schema, introspecting only on a cache miss.
func (o *queryOrchestrator) schema(ctx context.Context, run *queryRun) (*models.SchemaInfo, error) {
	if schema, ok := o.schemas.Get(ctx, run.conn); ok {
		run.logger.Debug("Using cached schema", zap.Int("tables", schema.TotalTables))
		return schema, nil
	}
	schema, err := run.adapter.GetSchemaInfo(ctx, run.conn.Config)
	if err != nil {
		return nil, err
	}
	o.schemas.Put(ctx, run.conn, schema)
	return schema, nil
}

// translate runs the family-specific translation. It returns nil when the run
// has already failed.
func (o *queryOrchestrator) translate(ctx context.Context, run *queryRun, req AIQueryRequest) *models.TranslationResult {
	if run.stage == StageErrored {
		return nil
	}

	var translation *models.TranslationResult
	switch run.conn.Type.Family() {
	case models.FamilySQL:
		schema, err := o.schema(ctx, run)
		if err != nil {
			run.fail(ctx, "failed to read schema", err)
			return nil
		}
		run.advance(StageSchemaResolved)

		translation = o.translator.TranslateToSQL(ctx, SQLTranslationRequest{
			ConnectionType: run.conn.Type,
			Database:       databaseName(run.conn.Config),
			Schema:         schema,
			Question:       req.Question,
		})

	case models.FamilyAPI:
		apiCfg, ok := run.conn.Config.(*models.APIConfig)
		if !ok {
			run.fail(ctx, "connection config does not match its type", nil)
			return nil
		}
		endpoints, err := o.catalog.Lookup(ctx, apiCfg.APIURL)
		if err != nil {
			run.logger.Warn("Endpoint catalog lookup failed", zap.Error(err))
			endpoints = nil
		}

		translation = o.translator.TranslateToAPICall(ctx, APITranslationRequest{
			ConnectionType: run.conn.Type,
			BaseURL:        apiCfg.APIURL,
			Endpoints:      endpoints,
			Question:       req.Question,
		})

	default:
		run.fail(ctx, "cannot query this connection", models.ErrUnsupportedType(run.conn.Type))
		return nil
	}

	run.resp.GeneratedQuery = translation.GeneratedQuery
	run.resp.QueryType = translation.QueryType
	run.resp.Confidence = translation.Confidence
	run.resp.Explanation = translation.Explanation
	run.resp.Warning = translation.Warning
	metrics.ObserveConfidence(string(translation.QueryType), translation.Confidence)
	run.advance(StageTranslated)

	if translation.QueryType == models.QueryTypeError {
		run.failWithMessage(ctx, translation.Explanation, translation.Cause)
		return nil
	}

	if translation.QueryType == models.QueryTypeAPICall {
		apiReq, err := parseAPICall(translation.GeneratedQuery)
		if err != nil {
			var injErr *sqlguard.InjectionError
			if errors.As(err, &injErr) {
				metrics.IncrementGuardRejection(string(translation.QueryType))
				o.auditor.LogInjectionAttempt(ctx, run.auditContext(), injErr)
			}
			run.fail(ctx, "invalid API call", err)
			return nil
		}
		run.apiReq = apiReq
	}

	if o.cfg.BlockLowConfidence && translation.Confidence < o.cfg.ConfidenceThreshold {
		if req.Confirmed {
			o.auditor.LogConfirmationOverride(ctx, run.auditContext(), translation.Confidence, o.cfg.ConfidenceThreshold)
			return translation
		}
		run.resp.NeedsConfirmation = true
		metrics.IncrementHeldForConfirmation()
		run.fail(ctx, fmt.Sprintf("%s (%.2f < %.2f); resubmit with confirmation to execute",
			apperrors.ErrLowConfidence, translation.Confidence, o.cfg.ConfidenceThreshold), nil)
		return nil
	}
	return translation
}

func (o *queryOrchestrator) execute(ctx context.Context, run *queryRun, translation *models.TranslationResult) {
	var rows []models.Row
	var err error

	switch translation.QueryType {
	case models.QueryTypeSQL:
		rows, err = run.adapter.ExecuteQuery(ctx, run.conn.Config, translation.GeneratedQuery)

	case models.QueryTypeAPICall:
		if executor, ok := run.adapter.(datasource.RequestExecutor); ok {
			rows, err = executor.ExecuteRequest(ctx, run.conn.Config, run.apiReq)
		} else {
			rows, err = run.adapter.ExecuteQuery(ctx, run.conn.Config, run.apiReq.Method+" "+run.apiReq.Path)
		}
	}

	if err != nil {
		if sqlguard.IsRejected(err) {
			metrics.IncrementGuardRejection(string(translation.QueryType))
			o.auditor.LogQueryRejected(ctx, run.auditContext(), err)
		}
		run.fail(ctx, "query execution failed", err)
		return
	}

	if rows == nil {
		rows = []models.Row{}
	}
	run.resp.Results = rows
	run.resp.Status = models.QueryStatusSuccess
	run.advance(StageExecuted)
}

// parseAPICall turns the generated JSON into a request, rejecting refusals
// and suspicious parameter values before any network I/O.
func parseAPICall(generated string) (datasource.APIRequest, error) {
	var call models.APICall
	if err := json.Unmarshal([]byte(generated), &call); err != nil {
		return datasource.APIRequest{}, fmt.Errorf("unparseable call: %w", err)
	}
	if call.Error != "" {
		reason := call.Reason
		if reason == "" {
			reason = call.Error
		}
		return datasource.APIRequest{}, fmt.Errorf("the question cannot be answered with this API: %s", reason)
	}
	if call.Method == "" || call.Path == "" {
		return datasource.APIRequest{}, errors.New("method and path are required")
	}
	if err := sqlguard.CheckAPIParameters(call.Params, call.Body); err != nil {
		return datasource.APIRequest{}, err
	}
	return datasource.APIRequest{
		Method: strings.ToUpper(call.Method),
		Path:   call.Path,
		Params: call.Params,
		Body:   call.Body,
	}, nil
}

// record appends the attempt to history. It runs detached from the request
// deadline so timed-out attempts are still recorded.
func (o *queryOrchestrator) record(ctx context.Context, run *queryRun) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()

	// Rows the history column cannot hold (NaN, Inf, channels) would fail the
	// insert, so the attempt is stored as an error without results instead.
	if _, err := json.Marshal(run.resp.Results); err != nil {
		run.resp.Results = nil
		run.fail(ctx, "results could not be serialized", err)
	}

	record := run.resp.AIQueryResult
	if err := o.history.Insert(writeCtx, &record); err != nil {
		run.logger.Error("Failed to record AI query history",
			zap.String("status", string(record.Status)),
			zap.Error(err))
		return
	}
	run.resp.AIQueryResult = record
	run.advance(StageRecorded)
}

func databaseName(cfg models.ConnectionConfig) string {
	switch c := cfg.(type) {
	case *models.SQLConfig:
		return c.Database
	case *models.SupabaseConfig:
		if c.Database != "" {
			return c.Database
		}
		return "postgres"
	}
	return ""
}

var _ QueryOrchestrator = (*queryOrchestrator)(nil)
