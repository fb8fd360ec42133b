package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nvalverde/shepherd/internal/artifact"
	"github.com/nvalverde/shepherd/internal/assemble"
	"github.com/nvalverde/shepherd/internal/source"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// assembleOptions holds options for the assemble command.
type assembleOptions struct {
	Methodologies []string
	Standards     []string
	Detail        bool
	Watch         bool
	Output        string
	MaxBytes      int
}

// debounceWindow coalesces bursts of filesystem events in watch mode.
const debounceWindow = 300 * time.Millisecond

func newAssembleCommand() *cobra.Command {
	opts := &assembleOptions{}

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble the agent context artifact from configuration sources",
		Long: `Merge the core sources, the selected methodologies and standards, and
any user overrides into a single ordered context artifact.

Core sections always come first. Re-running against unchanged sources
produces an identical artifact apart from the generation timestamp.`,
		Example: `  # Core + user overrides only
  shepherd assemble

  # Select methodologies and standards, include methodology detail
  shepherd assemble --methodology shape-up,tdd --standard golang --detail

  # Rebuild automatically when sources change
  shepherd assemble --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssemble(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Methodologies, "methodology", "m", nil, "Methodology source ids to include")
	cmd.Flags().StringSliceVarP(&opts.Standards, "standard", "s", nil, "Standard source ids to include")
	cmd.Flags().BoolVar(&opts.Detail, "detail", false, "Include methodology detail sections")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-assemble when sources change")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Artifact path (default from config)")
	cmd.Flags().IntVar(&opts.MaxBytes, "max-bytes", 0, "Artifact size cap; detail sections are dropped to fit")

	return cmd
}

func runAssemble(ctx context.Context, opts *assembleOptions) error {
	if err := assembleOnce(ctx, opts); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}
	return watchAndAssemble(ctx, opts)
}

func assembleOnce(ctx context.Context, opts *assembleOptions) error {
	started := time.Now()

	registry := source.NewFileRegistry(cfg.SourcesDir, logger)
	core, err := registry.LoadCore(ctx)
	if err != nil {
		return err
	}

	sel := source.NewSelection(opts.Methodologies, opts.Standards)
	selected, warnings, err := registry.LoadSelected(ctx, sel)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("unknown selection id skipped",
			zap.String("id", w.ID),
			zap.String("kind", string(w.Kind)))
	}

	maxBytes := opts.MaxBytes
	if maxBytes == 0 {
		maxBytes = cfg.MaxArtifactBytes
	}

	doc, err := assemble.New(logger).Assemble(core, selected, nil, assemble.Options{
		Detail:       opts.Detail,
		MaxBytes:     maxBytes,
		ArtifactName: cfg.ArtifactName,
	})
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		output = cfg.ArtifactPath
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating artifact directory: %w", err)
		}
	}
	if err := artifact.NewWriter(logger).Write(output, []byte(doc.Render())); err != nil {
		return err
	}

	for _, c := range doc.Collisions {
		logger.Warn("section title collision",
			zap.String("title", c.Title),
			zap.Strings("sources", c.SourceIDs))
	}
	if len(doc.Dropped) > 0 {
		logger.Warn("detail sections dropped to fit size cap",
			zap.Int("dropped", len(doc.Dropped)))
	}

	fmt.Printf("Assembled %s: %d sections from %d sources\n",
		output, len(doc.Entries), len(doc.SourceIDs()))

	recordRun("assemble", started, 0, map[string]any{
		"artifact":   output,
		"sections":   len(doc.Entries),
		"sources":    doc.SourceIDs(),
		"collisions": len(doc.Collisions),
		"dropped":    len(doc.Dropped),
	})
	return nil
}

// watchAndAssemble rebuilds the artifact whenever a source file
// changes, until the context is done or an interrupt arrives.
func watchAndAssemble(ctx context.Context, opts *assembleOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	dirs := []string{
		cfg.SourcesDir,
		filepath.Join(cfg.SourcesDir, source.CoreDir),
		filepath.Join(cfg.SourcesDir, source.MethodologiesDir),
		filepath.Join(cfg.SourcesDir, source.StandardsDir),
		filepath.Join(cfg.SourcesDir, source.UserDir),
	}
	for _, dir := range dirs {
		if _, statErr := os.Stat(dir); statErr != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info("watching for source changes", zap.String("dir", cfg.SourcesDir))

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sigCh:
			logger.Info("watch stopped")
			return nil
		case err := <-watcher.Errors:
			logger.Warn("watch error", zap.Error(err))
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(debounceWindow)
				fire = debounce.C
			} else {
				debounce.Reset(debounceWindow)
			}
		case <-fire:
			debounce, fire = nil, nil
			if err := assembleOnce(ctx, opts); err != nil {
				logger.Error("re-assembly failed", zap.Error(err))
			}
		}
	}
}
