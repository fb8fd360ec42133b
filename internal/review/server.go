package review

import (
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/nvalverde/shepherd/internal/config"
	"github.com/nvalverde/shepherd/internal/ledger"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags.
var Version = "dev"

// janitorInterval is how often expired sessions are swept.
const janitorInterval = time.Minute

// NewServer wires the review tools and resources into an MCP server.
// This is the composition root: dependencies are resolved here and
// nowhere else.
//
// The returned cleanup function stops the session janitor and must be
// called on shutdown (typically via defer).
func NewServer(cfg *config.Config, logger *zap.Logger) (*server.MCPServer, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := NewManager(cfg.SessionTimeout, logger)

	s := server.NewMCPServer(
		"shepherd",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	startTool := NewStartTool(manager)
	s.AddTool(startTool.Definition(), startTool.Handle)

	snapshotTool := NewSnapshotTool(manager, logger)
	s.AddTool(snapshotTool.Definition(), snapshotTool.Handle)

	reviewTool := NewReviewTool(manager, cfg.VerifyCacheTTL, logger)
	s.AddTool(reviewTool.Definition(), reviewTool.Handle)

	endTool := NewEndTool(manager)
	s.AddTool(endTool.Definition(), endTool.Handle)

	// The run ledger is an independent subsystem: if it fails to open,
	// the review tools keep working and the status resource just omits
	// run history.
	runs, ledgerErr := ledger.New(ledger.Config{DataDir: cfg.LedgerDir})
	if ledgerErr != nil {
		logger.Warn("run ledger disabled", zap.Error(ledgerErr))
		runs = nil
	}

	handler := NewHandler(manager, runs, Version)
	s.AddResource(handler.StatusResource(), handler.HandleStatus)

	stop := make(chan struct{})
	go manager.Janitor(stop, janitorInterval)
	cleanup := func() {
		close(stop)
		if runs != nil {
			if err := runs.Close(); err != nil {
				logger.Warn("run ledger close", zap.Error(err))
			}
		}
	}

	return s, cleanup, nil
}

func serverInstructions() string {
	return `Shepherd reviews transcript text for file operation claims and
verifies them against the filesystem before the text reaches the user.

Workflow:
1. review_session_start — open a session for the working directory.
2. review_snapshot — optional but recommended: record file states
   before making changes, so modification claims are checked against
   real baselines instead of bare existence.
3. review_text — after composing a response that mentions file
   operations, pass it through this tool and surface the returned text
   instead of the original. Unverified claims come back rewritten to
   state what verification actually found.
4. review_session_end — close the session when the conversation ends.`
}
