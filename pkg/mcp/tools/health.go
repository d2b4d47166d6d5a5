package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const healthProbeTimeout = 2 * time.Second

// Pinger is the database probe used by the health tool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthStatus struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
}

// RegisterHealthTool adds the health tool. With a nil db only the version is
// reported; otherwise an unreachable database marks the server degraded.
func RegisterHealthTool(s *server.MCPServer, version string, db Pinger) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Reports whether the query service and its metadata database are reachable"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := probeHealth(ctx, version, db)
		result, err := jsonResult(status)
		if err != nil {
			return nil, fmt.Errorf("encode health status: %w", err)
		}
		return result, nil
	})
}

func probeHealth(ctx context.Context, version string, db Pinger) healthStatus {
	status := healthStatus{Status: "ok", Version: version}
	if db == nil {
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		status.Status = "degraded"
		status.Database = "unavailable"
		return status
	}
	status.Database = "connected"
	return status
}
