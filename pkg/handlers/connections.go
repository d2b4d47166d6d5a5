package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

// TenantMiddleware wraps a handler with a tenant-scoped database connection.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ConnectionRequest is the POST/PUT body. Config is decoded into the variant
// selected by Type.
type ConnectionRequest struct {
	Name      string                `json:"name"`
	Type      models.ConnectionType `json:"type"`
	Config    json.RawMessage       `json:"config"`
	IsDefault bool                  `json:"is_default"`
}

// TestConfigRequest probes a config without saving it.
type TestConfigRequest struct {
	Type   models.ConnectionType `json:"type"`
	Config json.RawMessage       `json:"config"`
}

// ListConnectionsResponse wraps the connection array.
type ListConnectionsResponse struct {
	Connections []*models.DataConnection `json:"connections"`
}

// ConnectionsHandler serves connection CRUD, probes and schema introspection.
type ConnectionsHandler struct {
	connectionService services.ConnectionService
	logger            *zap.Logger
}

// NewConnectionsHandler creates a new connections handler.
func NewConnectionsHandler(connectionService services.ConnectionService, logger *zap.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{
		connectionService: connectionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the connection routes. Mutations and probes require the admin role.
func (h *ConnectionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := auth.RequireRole(auth.RoleAdmin)

	mux.HandleFunc("GET /api/connection-types", authMiddleware.RequireAuth(h.ListTypes))
	mux.HandleFunc("GET /api/connections",
		authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/connections",
		authMiddleware.RequireAuth(admin(tenantMiddleware(h.Create))))
	mux.HandleFunc("POST /api/connections/test",
		authMiddleware.RequireAuth(admin(h.TestConfig)))
	mux.HandleFunc("GET /api/connections/{cid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/connections/{cid}",
		authMiddleware.RequireAuth(admin(tenantMiddleware(h.Update))))
	mux.HandleFunc("DELETE /api/connections/{cid}",
		authMiddleware.RequireAuth(admin(tenantMiddleware(h.Delete))))
	mux.HandleFunc("POST /api/connections/{cid}/test",
		authMiddleware.RequireAuth(admin(tenantMiddleware(h.Test))))
	mux.HandleFunc("GET /api/connections/{cid}/schema",
		authMiddleware.RequireAuth(tenantMiddleware(h.Schema)))
}

// ListTypes handles GET /api/connection-types
func (h *ConnectionsHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.logger, http.StatusOK, map[string]any{"types": h.connectionService.ListTypes()})
}

// List handles GET /api/connections
func (h *ConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	conns, err := h.connectionService.List(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to list connections")
		return
	}

	data := ListConnectionsResponse{Connections: make([]*models.DataConnection, len(conns))}
	for i, conn := range conns {
		data.Connections[i] = conn.Redacted()
	}
	writeSuccess(w, h.logger, http.StatusOK, data)
}

// Create handles POST /api/connections
func (h *ConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}

	input, ok := h.decodeConnection(w, r)
	if !ok {
		return
	}

	conn, err := h.connectionService.Create(r.Context(), tenantID, input)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to create connection")
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, conn.Redacted())
}

// Get handles GET /api/connections/{cid}
func (h *ConnectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}
	connID, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	conn, err := h.connectionService.Get(r.Context(), tenantID, connID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to get connection")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, conn.Redacted())
}

// Update handles PUT /api/connections/{cid}
// Secret fields sent back masked keep their stored values.
func (h *ConnectionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}
	connID, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	input, ok := h.decodeConnection(w, r)
	if !ok {
		return
	}

	conn, err := h.connectionService.Update(r.Context(), tenantID, connID, input)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update connection")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, conn.Redacted())
}

// Delete handles DELETE /api/connections/{cid}
func (h *ConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}
	connID, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.connectionService.Delete(r.Context(), tenantID, connID); err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to delete connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /api/connections/{cid}/test
// A failed probe is still a 200; the outcome is in the body.
func (h *ConnectionsHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}
	connID, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.connectionService.Test(r.Context(), tenantID, connID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to test connection")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, result)
}

// TestConfig handles POST /api/connections/test
func (h *ConnectionsHandler) TestConfig(w http.ResponseWriter, r *http.Request) {
	var req TestConfigRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	cfg, err := models.DecodeConfig(req.Type, req.Config)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to decode config")
		return
	}

	result, err := h.connectionService.TestConfig(r.Context(), req.Type, cfg)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to test connection")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, result)
}

// Schema handles GET /api/connections/{cid}/schema
func (h *ConnectionsHandler) Schema(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantFromRequest(w, r, h.logger)
	if !ok {
		return
	}
	connID, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	schema, err := h.connectionService.GetSchema(r.Context(), tenantID, connID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to read schema")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, schema)
}

func (h *ConnectionsHandler) decodeConnection(w http.ResponseWriter, r *http.Request) (services.ConnectionInput, bool) {
	var req ConnectionRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return services.ConnectionInput{}, false
	}
	if req.Name == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_name", "Connection name is required")
		return services.ConnectionInput{}, false
	}
	if len(req.Config) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "missing_config", "Connection config is required")
		return services.ConnectionInput{}, false
	}

	cfg, err := models.DecodeConfig(req.Type, req.Config)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to decode config")
		return services.ConnectionInput{}, false
	}
	return services.ConnectionInput{
		Name:      req.Name,
		Type:      req.Type,
		Config:    cfg,
		IsDefault: req.IsDefault,
	}, true
}
