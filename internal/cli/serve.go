package cli

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/nvalverde/shepherd/internal/review"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the review MCP server on stdio",
		Long: `Expose the claim review tools (review_session_start, review_snapshot,
review_text, review_session_end) over the Model Context Protocol so an
agent host can have transcript text verified before surfacing it.

The server speaks MCP on stdin/stdout; logs go to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			review.Version = Version
			s, cleanup, err := review.NewServer(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			return mcpserver.ServeStdio(s)
		},
	}
}
