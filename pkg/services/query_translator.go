package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/config"
	"github.com/ekaya-inc/ekaya-query/pkg/llm"
	"github.com/ekaya-inc/ekaya-query/pkg/logging"
	"github.com/ekaya-inc/ekaya-query/pkg/metrics"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/prompts"
	sqlguard "github.com/ekaya-inc/ekaya-query/pkg/sql"
)

const (
	// baseConfidence is where every score starts.
	baseConfidence = 0.5
	// floorConfidence is the cap for destructive or self-reported failures.
	floorConfidence = 0.1
)

// SQLTranslationRequest is the input to TranslateToSQL.
type SQLTranslationRequest struct {
	ConnectionType models.ConnectionType
	Database       string
	Schema         *models.SchemaInfo
	Question       string
}

// APITranslationRequest is the input to TranslateToAPICall.
type APITranslationRequest struct {
	ConnectionType models.ConnectionType
	BaseURL        string
	Endpoints      []models.APIEndpoint
	Question       string
}

// QueryTranslator turns a question into a candidate query. It never executes
// anything, and failures come back as QueryTypeError results instead of errors.
type QueryTranslator interface {
	TranslateToSQL(ctx context.Context, req SQLTranslationRequest) *models.TranslationResult
	TranslateToAPICall(ctx context.Context, req APITranslationRequest) *models.TranslationResult
}

type queryTranslator struct {
	client        llm.LLMClient
	llmConfig     config.LLMConfig
	warnThreshold float64
	logger        *zap.Logger
}

// NewQueryTranslator creates a translator. Results scoring below warnThreshold
// carry a low-confidence warning.
func NewQueryTranslator(client llm.LLMClient, llmConfig config.LLMConfig, warnThreshold float64, logger *zap.Logger) QueryTranslator {
	return &queryTranslator{
		client:        client,
		llmConfig:     llmConfig,
		warnThreshold: warnThreshold,
		logger:        logger.Named("translator"),
	}
}

func (t *queryTranslator) TranslateToSQL(ctx context.Context, req SQLTranslationRequest) *models.TranslationResult {
	dialect := datasource.DialectFor(req.ConnectionType)
	prompt := prompts.BuildSQLPrompt(prompts.SQLPromptInput{
		Dialect:  dialect,
		Database: req.Database,
		Schema:   req.Schema.Flatten(),
		Question: req.Question,
	})

	content, err := t.complete(ctx, prompts.SQLSystemMessage, prompt)
	if err != nil {
		return translationFailure("translation failed", err)
	}

	query := sqlguard.StripTrailingSemicolons(strings.TrimSpace(llm.StripCodeFences(content)))
	if query == "" {
		return translationFailure("translation failed", errors.New("model returned an empty query"))
	}

	confidence := ScoreSQL(query)
	if signalsUnsupported(query) {
		return &models.TranslationResult{
			GeneratedQuery: query,
			QueryType:      models.QueryTypeError,
			Confidence:     confidence,
			Explanation:    "The question cannot be answered from this schema",
		}
	}

	result := &models.TranslationResult{
		GeneratedQuery: query,
		QueryType:      models.QueryTypeSQL,
		Confidence:     confidence,
		Explanation:    fmt.Sprintf("Generated %s query", dialect),
	}
	t.attachWarning(result)

	t.logger.Debug("Translated question to SQL",
		zap.String("dialect", dialect),
		zap.Float64("confidence", confidence),
		zap.String("query", logging.SanitizeQuery(query)))
	return result
}

func (t *queryTranslator) TranslateToAPICall(ctx context.Context, req APITranslationRequest) *models.TranslationResult {
	prompt := prompts.BuildAPIPrompt(prompts.APIPromptInput{
		BaseURL:   req.BaseURL,
		Endpoints: req.Endpoints,
		Question:  req.Question,
	})

	content, err := t.complete(ctx, prompts.APISystemMessage, prompt)
	if err != nil {
		return translationFailure("translation failed", err)
	}

	call, err := llm.ParseJSONResponse[models.APICall](content)
	if err != nil {
		return translationFailure("could not parse API call", err)
	}

	canonical, err := json.Marshal(call)
	if err != nil {
		return translationFailure("could not encode API call", err)
	}

	confidence := ScoreAPICall(&call)
	result := &models.TranslationResult{
		GeneratedQuery: string(canonical),
		QueryType:      models.QueryTypeAPICall,
		Confidence:     confidence,
		Explanation:    call.Description,
	}
	if call.Error != "" {
		result.Explanation = call.Reason
	}
	t.attachWarning(result)
	return result
}

// complete makes the single LLM call for a translation.
func (t *queryTranslator) complete(ctx context.Context, system, prompt string) (string, error) {
	provider := t.client.GetProvider()

	result, err := t.client.Complete(ctx, llm.RequestFromConfig(t.llmConfig, system, prompt))
	if err != nil {
		metrics.ObserveLLMRequest(provider, string(llm.GetErrorType(err)))
		t.logger.Warn("LLM completion failed",
			zap.String("provider", provider),
			zap.String("model", t.client.GetModel()),
			zap.String("error", logging.SanitizeError(err)))
		return "", err
	}

	metrics.ObserveLLMRequest(provider, "success")
	return result.Content, nil
}

func (t *queryTranslator) attachWarning(result *models.TranslationResult) {
	if result.Confidence < t.warnThreshold {
		result.Warning = fmt.Sprintf(
			"Low confidence translation (%.2f). Review the generated query before relying on the results.",
			result.Confidence)
	}
}

func translationFailure(what string, err error) *models.TranslationResult {
	return &models.TranslationResult{
		QueryType:   models.QueryTypeError,
		Confidence:  0,
		Explanation: what + ": " + logging.SanitizeError(err),
		Cause:       err,
	}
}

var (
	sqlClausePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bSELECT\b`),
		regexp.MustCompile(`(?i)\bFROM\b`),
		regexp.MustCompile(`(?i)\bWHERE\b`),
		regexp.MustCompile(`(?i)\bJOIN\b`),
		regexp.MustCompile(`(?i)\bGROUP\s+BY\b`),
		regexp.MustCompile(`(?i)\bORDER\s+BY\b`),
		regexp.MustCompile(`(?i)\bHAVING\b`),
	}

	unsupportedPattern = regexp.MustCompile(`(?i)unsupported query|^\s*(error|sorry|i cannot|i can't)\b|cannot be answered`)

	httpVerbs = map[string]bool{"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true}
)

func signalsUnsupported(text string) bool {
	return unsupportedPattern.MatchString(text)
}

// ScoreSQL computes a deterministic confidence for a generated query. It
// rises with the share of recognized clause keywords present and drops to
// the floor for destructive keywords or text that reports a failure.
func ScoreSQL(query string) float64 {
	if sqlguard.DefaultPolicy.FindKeyword(query) != "" || signalsUnsupported(query) {
		return floorConfidence
	}

	present := 0
	for _, p := range sqlClausePatterns {
		if p.MatchString(query) {
			present++
		}
	}
	score := baseConfidence + (1-baseConfidence)*float64(present)/float64(len(sqlClausePatterns))
	return round2(math.Min(score, 1.0))
}

// ScoreAPICall computes a deterministic confidence for a structured API call.
// A recognized verb only counts once both method and path are present.
func ScoreAPICall(call *models.APICall) float64 {
	score := baseConfidence
	if call.Method == "" || call.Path == "" {
		return score
	}
	score += 0.3
	if httpVerbs[strings.ToUpper(call.Method)] {
		score += 0.2
	}
	return round2(math.Min(score, 1.0))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ QueryTranslator = (*queryTranslator)(nil)
