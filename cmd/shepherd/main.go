// Shepherd: agent context assembly and claim verification.
//
// Usage:
//
//	shepherd assemble       # Build the agent context artifact
//	shepherd verify-claims  # Verify file claims in transcript text
//	shepherd plan-merge     # Plan merging project docs centrally
//	shepherd apply-merge    # Apply the approved merge plan
//	shepherd serve          # Start the review MCP server (stdio)
//	shepherd history        # Show recent runs
package main

import (
	"os"

	"github.com/nvalverde/shepherd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
