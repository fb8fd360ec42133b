package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nvalverde/shepherd/internal/claims"
	"go.uber.org/zap"
)

// StartTool handles the review_session_start MCP tool.
type StartTool struct {
	manager *Manager
}

// NewStartTool creates a StartTool with its dependencies.
func NewStartTool(m *Manager) *StartTool {
	return &StartTool{manager: m}
}

// Definition returns the MCP tool definition for registration.
func (t *StartTool) Definition() mcp.Tool {
	return mcp.NewTool("review_session_start",
		mcp.WithDescription(
			"Open a review session for a working directory. Returns a session "+
				"token used by the other review tools. Take a snapshot with "+
				"review_snapshot before making changes if you want modification "+
				"claims verified against recorded file states.",
		),
		mcp.WithString("working_dir",
			mcp.Description("Directory the reviewed text's file claims refer to. "+
				"Defaults to the server's working directory."),
		),
	)
}

// Handle processes the review_session_start tool call.
func (t *StartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root := req.GetString("working_dir", "")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		root = cwd
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("'working_dir' is not a directory: %s", root)), nil
	}

	s := t.manager.Start(root)
	payload := map[string]string{
		"token":       s.Token,
		"working_dir": s.Root,
		"started_at":  s.StartedAt.UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling session: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// SnapshotTool handles the review_snapshot MCP tool.
type SnapshotTool struct {
	manager *Manager
	logger  *zap.Logger
}

// NewSnapshotTool creates a SnapshotTool with its dependencies.
func NewSnapshotTool(m *Manager, logger *zap.Logger) *SnapshotTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotTool{manager: m, logger: logger}
}

// Definition returns the MCP tool definition for registration.
func (t *SnapshotTool) Definition() mcp.Tool {
	return mcp.NewTool("review_snapshot",
		mcp.WithDescription(
			"Record the current file states (hashes and mtimes) of the session's "+
				"working directory as the pre-change baseline. Without a snapshot, "+
				"creation and modification claims are verified on existence alone.",
		),
		mcp.WithString("token",
			mcp.Required(),
			mcp.Description("Session token from review_session_start."),
		),
	)
}

// Handle processes the review_snapshot tool call.
func (t *SnapshotTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, result := resolveSession(t.manager, req)
	if result != nil {
		return result, nil
	}

	snap, err := claims.TakeSnapshot(s.Root)
	if err != nil {
		return nil, fmt.Errorf("taking snapshot of %s: %w", s.Root, err)
	}
	s.Snapshot = snap

	t.logger.Info("review snapshot taken",
		zap.String("token", s.Token),
		zap.Int("files", len(snap.Files)))
	return mcp.NewToolResultText(fmt.Sprintf("Snapshot recorded: %d files under %s", len(snap.Files), s.Root)), nil
}

// ReviewTool handles the review_text MCP tool — the actual claim
// detection, verification, and rewriting pass.
type ReviewTool struct {
	manager  *Manager
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewReviewTool creates a ReviewTool with its dependencies.
func NewReviewTool(m *Manager, cacheTTL time.Duration, logger *zap.Logger) *ReviewTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewTool{manager: m, cacheTTL: cacheTTL, logger: logger}
}

// Definition returns the MCP tool definition for registration.
func (t *ReviewTool) Definition() mcp.Tool {
	return mcp.NewTool("review_text",
		mcp.WithDescription(
			"Scan text for file operation claims (created, modified, deleted), "+
				"verify each against the session's working directory, and return "+
				"the text with unverified claims rewritten to state what was "+
				"actually found. Verified text passes through byte-identical.",
		),
		mcp.WithString("token",
			mcp.Required(),
			mcp.Description("Session token from review_session_start."),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The transcript text to review."),
		),
	)
}

// reviewReport trails the rewritten text so hosts can act on counts
// without re-parsing corrections.
type reviewReport struct {
	Claims     int  `json:"claims"`
	Unverified int  `json:"unverified"`
	Snapshot   bool `json:"snapshot"`
}

// Handle processes the review_text tool call.
func (t *ReviewTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, errResult := resolveSession(t.manager, req)
	if errResult != nil {
		return errResult, nil
	}
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required — pass the transcript text to review"), nil
	}

	detected := claims.DetectClaims(text)
	verifier := claims.NewVerifier(s.Root, t.cacheTTL, t.logger)
	results, err := verifier.VerifyAll(ctx, detected, s.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("verifying claims: %w", err)
	}

	corrected := claims.Rewrite(text, results)

	unverified := 0
	for _, r := range results {
		if !r.Verified {
			unverified++
		}
	}
	report, err := json.Marshal(reviewReport{
		Claims:     len(detected),
		Unverified: unverified,
		Snapshot:   s.Snapshot != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling report: %w", err)
	}

	return mcp.NewToolResultText(corrected + "\n\n" + string(report)), nil
}

// EndTool handles the review_session_end MCP tool.
type EndTool struct {
	manager *Manager
}

// NewEndTool creates an EndTool with its dependencies.
func NewEndTool(m *Manager) *EndTool {
	return &EndTool{manager: m}
}

// Definition returns the MCP tool definition for registration.
func (t *EndTool) Definition() mcp.Tool {
	return mcp.NewTool("review_session_end",
		mcp.WithDescription("Close a review session and drop its snapshot."),
		mcp.WithString("token",
			mcp.Required(),
			mcp.Description("Session token from review_session_start."),
		),
	)
}

// Handle processes the review_session_end tool call.
func (t *EndTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token := req.GetString("token", "")
	if token == "" {
		return mcp.NewToolResultError("'token' is required"), nil
	}
	if !t.manager.End(token) {
		return mcp.NewToolResultError("no such session — it may have already expired"), nil
	}
	return mcp.NewToolResultText("Session ended."), nil
}

// resolveSession extracts and validates the token argument. A non-nil
// result is the error to return to the host.
func resolveSession(m *Manager, req mcp.CallToolRequest) (*Session, *mcp.CallToolResult) {
	token := req.GetString("token", "")
	if token == "" {
		return nil, mcp.NewToolResultError("'token' is required — start a session with review_session_start")
	}
	s, err := m.Get(token)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, mcp.NewToolResultError("session expired — start a new one with review_session_start")
		}
		return nil, mcp.NewToolResultError("no such session — start one with review_session_start")
	}
	return s, nil
}
