package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nvalverde/shepherd/internal/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// historyOptions holds options for the history command.
type historyOptions struct {
	Operation string
	Limit     int
}

func newHistoryCommand() *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent shepherd runs",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runHistory(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Operation, "operation", "", "Only show runs of this operation")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to show")

	return cmd
}

func runHistory(opts *historyOptions) error {
	runs, err := ledger.New(ledger.Config{DataDir: cfg.LedgerDir})
	if err != nil {
		return err
	}
	defer runs.Close()

	recent, err := runs.Recent(opts.Operation, opts.Limit)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Operation", "Started", "Exit", "Detail"})
	for _, r := range recent {
		t.AppendRow(table.Row{r.ID, r.Operation, r.StartedAt, r.ExitCode, r.Detail})
	}
	t.Render()
	return nil
}

// recordRun appends a finished run to the ledger. Recording is
// best-effort: a broken ledger never fails the command that ran.
func recordRun(operation string, started time.Time, exitCode int, detail any) {
	runs, err := ledger.New(ledger.Config{DataDir: cfg.LedgerDir})
	if err != nil {
		logger.Debug("run not recorded", zap.Error(err))
		return
	}
	defer runs.Close()

	if _, err := runs.Record(ledger.RunRecord{
		Operation: operation,
		StartedAt: started,
		ExitCode:  exitCode,
		Detail:    detail,
	}); err != nil {
		logger.Debug("run not recorded", zap.Error(err))
	}
}
