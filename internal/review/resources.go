package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nvalverde/shepherd/internal/ledger"
)

// Handler manages shepherd resource endpoints.
type Handler struct {
	manager *Manager
	runs    *ledger.Store // nullable — status omits history without it
	version string
}

// NewHandler creates a resource Handler with its dependencies. runs
// may be nil when the ledger failed to open.
func NewHandler(m *Manager, runs *ledger.Store, version string) *Handler {
	return &Handler{manager: m, runs: runs, version: version}
}

// StatusResource returns the MCP resource definition for server status.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"shepherd://status",
		"Shepherd Status",
		mcp.WithResourceDescription("Server version, live review sessions, and recent runs"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the current server status as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	status := map[string]any{
		"version":         h.version,
		"active_sessions": h.manager.Active(),
		"session_timeout": h.manager.timeout.String(),
		"reported_at":     timeNow().UTC().Format(time.RFC3339),
	}

	if h.runs != nil {
		recent, err := h.runs.Recent("", 10)
		if err != nil {
			status["recent_runs_error"] = err.Error()
		} else {
			status["recent_runs"] = recent
		}
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling status: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
