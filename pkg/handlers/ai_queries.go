package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/repositories"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// AIQueryRequest is the body of POST /api/connections/{cid}/ai-query.
type AIQueryRequest struct {
	Question string `json:"question"`
	// Confirmed runs a translation that was held back for low confidence.
	Confirmed bool `json:"confirmed"`
}

// ListAIQueriesResponse is one page of history.
type ListAIQueriesResponse struct {
	Queries []*models.AIQueryResult `json:"queries"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
}

// AIQueriesHandler serves natural-language queries and their history.
type AIQueriesHandler struct {
	orchestrator   services.QueryOrchestrator
	historyService services.HistoryService
	logger         *zap.Logger
}

// NewAIQueriesHandler creates a new AI query handler.
func NewAIQueriesHandler(orchestrator services.QueryOrchestrator, historyService services.HistoryService, logger *zap.Logger) *AIQueriesHandler {
	return &AIQueriesHandler{
		orchestrator:   orchestrator,
		historyService: historyService,
		logger:         logger,
	}
}

// RegisterRoutes registers the AI query routes. Any authenticated tenant member may ask.
func (h *AIQueriesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/connections/{cid}/ai-query",
		authMiddleware.RequireAuth(tenantMiddleware(h.Ask)))
	mux.HandleFunc("GET /api/ai-queries",
		authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("GET /api/ai-queries/{qid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
}

// Ask handles POST /api/connections/{cid}/ai-query
// Pipeline failures are reported in the body with status ERROR or TIMEOUT,
// not as HTTP errors.
func (h *AIQueriesHandler) Ask(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}
	connID, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	var req AIQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_question", "Question is required")
		return
	}

	resp := h.orchestrator.ExecuteAIQuery(r.Context(), services.AIQueryRequest{
		TenantID:     tenantID,
		ConnectionID: connID,
		UserID:       auth.GetUserIDFromContext(r.Context()),
		Question:     req.Question,
		Confirmed:    req.Confirmed,
	})
	writeSuccess(w, h.logger, http.StatusOK, resp)
}

// List handles GET /api/ai-queries?connection_id=&status=&limit=&offset=
func (h *AIQueriesHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	var filters models.HistoryFilters
	query := r.URL.Query()

	if raw := query.Get("connection_id"); raw != "" {
		connID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_connection_id", "Invalid connection ID format")
			return
		}
		filters.ConnectionID = &connID
	}
	if raw := query.Get("status"); raw != "" {
		status := models.QueryStatus(strings.ToUpper(raw))
		if !status.Valid() {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_status", "status must be SUCCESS, ERROR or TIMEOUT")
			return
		}
		filters.Status = &status
	}
	if filters.Limit, ok = parseIntQuery(w, r, "limit", h.logger); !ok {
		return
	}
	if filters.Limit > repositories.MaxHistoryLimit {
		filters.Limit = repositories.MaxHistoryLimit
	}
	if filters.Offset, ok = parseIntQuery(w, r, "offset", h.logger); !ok {
		return
	}

	records, err := h.historyService.List(r.Context(), tenantID, filters)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to list query history")
		return
	}
	if records == nil {
		records = []*models.AIQueryResult{}
	}
	writeSuccess(w, h.logger, http.StatusOK, ListAIQueriesResponse{
		Queries: records,
		Limit:   filters.Limit,
		Offset:  filters.Offset,
	})
}

// Get handles GET /api/ai-queries/{qid}
func (h *AIQueriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}
	queryID, ok := ParseQueryID(w, r, h.logger)
	if !ok {
		return
	}

	record, err := h.historyService.Get(r.Context(), tenantID, queryID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to get query")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, record)
}
