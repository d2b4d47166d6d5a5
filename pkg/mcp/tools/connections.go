package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-query/pkg/auth"
	"github.com/ekaya-inc/ekaya-query/pkg/models"
	"github.com/ekaya-inc/ekaya-query/pkg/services"
)

const (
	defaultMaxRows = 100
	maxMaxRows     = 1000
)

// ConnectionToolDeps holds what the connection tools need.
type ConnectionToolDeps struct {
	Connections   services.ConnectionService
	Orchestrator  services.QueryOrchestrator
	TenantContext services.TenantContextFunc
	Logger        *zap.Logger
}

// RegisterConnectionTools registers list_connections and ask_connection.
func RegisterConnectionTools(s *server.MCPServer, deps *ConnectionToolDeps) {
	registerListConnectionsTool(s, deps)
	registerAskConnectionTool(s, deps)
}

// tenantScope resolves the caller from the JWT claims and acquires a
// tenant-scoped context. cleanup must be called when err is nil.
func tenantScope(ctx context.Context, deps *ConnectionToolDeps) (uuid.UUID, string, context.Context, func(), error) {
	tenantID, userID, err := auth.ExtractClaimsFromContext(ctx)
	if err != nil {
		return uuid.Nil, "", nil, nil, err
	}

	tenantCtx, cleanup, err := deps.TenantContext(ctx, tenantID)
	if err != nil {
		return uuid.Nil, "", nil, nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return tenantID, userID, tenantCtx, cleanup, nil
}

type connectionInfo struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Type      models.ConnectionType   `json:"type"`
	Dialect   string                  `json:"dialect"`
	Status    models.ConnectionStatus `json:"status"`
	IsDefault bool                    `json:"is_default"`
}

type listConnectionsResult struct {
	Connections []connectionInfo `json:"connections"`
}

func registerListConnectionsTool(s *server.MCPServer, deps *ConnectionToolDeps) {
	tool := mcp.NewTool(
		"list_connections",
		mcp.WithDescription("Lists the data connections you can ask questions about. "+
			"Use the returned id with ask_connection."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID, _, tenantCtx, cleanup, err := tenantScope(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		conns, err := deps.Connections.List(tenantCtx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to list connections: %w", err)
		}

		result := listConnectionsResult{Connections: make([]connectionInfo, 0, len(conns))}
		for _, conn := range conns {
			result.Connections = append(result.Connections, connectionInfo{
				ID:        conn.ID.String(),
				Name:      conn.Name,
				Type:      conn.Type,
				Dialect:   datasource.DialectFor(conn.Type),
				Status:    conn.Status,
				IsDefault: conn.IsDefault,
			})
		}
		return jsonResult(result)
	})
}

type askConnectionResult struct {
	*models.AIQueryResponse
	RowCount  int  `json:"row_count"`
	Truncated bool `json:"truncated,omitempty"`
}

func registerAskConnectionTool(s *server.MCPServer, deps *ConnectionToolDeps) {
	tool := mcp.NewTool(
		"ask_connection",
		mcp.WithDescription("Answers a natural-language question against one data connection. "+
			"The question is translated into a read-only query, executed, and recorded in history. "+
			"When needs_confirmation is true, review generated_query and ask again with confirmed=true."),
		mcp.WithString("connection_id",
			mcp.Required(),
			mcp.Description("Connection id from list_connections")),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question in plain language")),
		mcp.WithBoolean("confirmed",
			mcp.Description("Run a translation that was held back for low confidence")),
		mcp.WithNumber("max_rows",
			mcp.Description("Maximum rows to return (default 100, max 1000)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		connIDStr, err := req.RequireString("connection_id")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		connID, err := uuid.Parse(connIDStr)
		if err != nil {
			return NewErrorResult("invalid_parameters", "connection_id must be a UUID"), nil
		}
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return NewErrorResult("invalid_parameters", "question is required"), nil
		}

		maxRows := defaultMaxRows
		if v, ok := optionalFloat(req, "max_rows"); ok && v >= 1 {
			maxRows = min(int(v), maxMaxRows)
		}

		tenantID, userID, tenantCtx, cleanup, err := tenantScope(ctx, deps)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		resp := deps.Orchestrator.ExecuteAIQuery(tenantCtx, services.AIQueryRequest{
			TenantID:     tenantID,
			ConnectionID: connID,
			UserID:       userID,
			Question:     question,
			Confirmed:    optionalBool(req, "confirmed"),
		})

		result := askConnectionResult{AIQueryResponse: resp, RowCount: len(resp.Results)}
		if len(resp.Results) > maxRows {
			trimmed := *resp
			trimmed.Results = resp.Results[:maxRows]
			result.AIQueryResponse = &trimmed
			result.Truncated = true
		}

		out, err := jsonResult(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query result: %w", err)
		}
		out.IsError = resp.Status != models.QueryStatusSuccess
		return out, nil
	})
}
