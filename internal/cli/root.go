// Package cli provides the command-line interface for shepherd.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/nvalverde/shepherd/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

// exitCodeError carries a specific process exit code up to Execute.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shepherd",
		Short: "Shepherd - agent context assembly and claim verification",
		Long: `Shepherd assembles layered configuration sources into a single agent
context artifact, verifies file operation claims in agent output against
the filesystem, and merges project documentation into a central tree
with explicit conflict approval.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			var err error
			cfg, err = config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger = newLogger(cfg.Verbose)
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./shepherd.yaml)")
	rootCmd.PersistentFlags().String("sources-dir", "", "Path to the configuration sources directory")
	rootCmd.PersistentFlags().String("central-dir", "", "Path to the central documentation tree")
	rootCmd.PersistentFlags().String("project-dir", "", "Path to the project documentation directory")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newAssembleCommand())
	rootCmd.AddCommand(newVerifyClaimsCommand())
	rootCmd.AddCommand(newPlanMergeCommand())
	rootCmd.AddCommand(newApplyMergeCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code:
// 0 on success, 1 on errors, and the carried code for failures that
// declare one (unresolved merge conflicts exit 2).
func Execute() int {
	err := NewRootCmd().Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

// newLogger builds a console logger on stderr. Stdout is reserved for
// command output so it stays pipeable.
func newLogger(verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}
