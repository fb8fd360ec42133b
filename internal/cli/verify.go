package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nvalverde/shepherd/internal/claims"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// verifyOptions holds options for the verify-claims command.
type verifyOptions struct {
	Root         string
	SnapshotFile string
	SaveSnapshot string
	JSONOutput   bool
}

func newVerifyClaimsCommand() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify-claims [file]",
		Short: "Verify file operation claims in text against the filesystem",
		Long: `Scan text for claims like "I created x.go" or "modified config.yaml",
check each against the working directory, and print the text with
unverified claims rewritten to state what was actually found.

Text is read from the named file, or from stdin when no file is given.
With --save-snapshot, no text is read: the current file states of
--root are recorded to the named file, for later use with --snapshot
so modification claims are judged against real baselines.`,
		Example: `  # Verify a transcript against the current directory
  shepherd verify-claims transcript.txt

  # Record a pre-change baseline, then verify against it
  shepherd verify-claims --save-snapshot before.json
  shepherd verify-claims --snapshot before.json transcript.txt

  # Pipe agent output through verification
  some-agent | shepherd verify-claims`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyClaims(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Root, "root", ".", "Directory the claims refer to")
	cmd.Flags().StringVar(&opts.SnapshotFile, "snapshot", "", "Pre-change snapshot file to verify modification claims against")
	cmd.Flags().StringVar(&opts.SaveSnapshot, "save-snapshot", "", "Record the current file states of --root to this file and exit")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Emit per-claim verification results as JSON")

	return cmd
}

func runVerifyClaims(cmd *cobra.Command, args []string, opts *verifyOptions) error {
	started := time.Now()

	if opts.SaveSnapshot != "" {
		return saveSnapshot(opts.Root, opts.SaveSnapshot)
	}

	text, err := readInput(args)
	if err != nil {
		return err
	}

	var snap *claims.Snapshot
	if opts.SnapshotFile != "" {
		snap, err = loadSnapshot(opts.SnapshotFile)
		if err != nil {
			return err
		}
	}

	detected := claims.DetectClaims(text)
	verifier := claims.NewVerifier(opts.Root, cfg.VerifyCacheTTL, logger)
	results, err := verifier.VerifyAll(cmd.Context(), detected, snap)
	if err != nil {
		return err
	}

	unverified := 0
	for _, r := range results {
		if !r.Verified {
			unverified++
		}
	}

	if opts.JSONOutput {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling results: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(claims.Rewrite(text, results))
	}

	logger.Info("claims verified",
		zap.Int("claims", len(detected)),
		zap.Int("unverified", unverified))

	recordRun("verify-claims", started, 0, map[string]any{
		"claims":     len(detected),
		"unverified": unverified,
		"snapshot":   snap != nil,
	})
	return nil
}

func readInput(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data), nil
}

func saveSnapshot(root, path string) error {
	snap, err := claims.TakeSnapshot(root)
	if err != nil {
		return fmt.Errorf("taking snapshot of %s: %w", root, err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	fmt.Printf("Snapshot of %s written to %s (%d files)\n", root, path, len(snap.Files))
	return nil
}

func loadSnapshot(path string) (*claims.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap claims.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return &snap, nil
}
