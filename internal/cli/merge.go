package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/nvalverde/shepherd/internal/artifact"
	"github.com/nvalverde/shepherd/internal/mergeplan"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// mergeOptions holds shared options for the merge commands.
type mergeOptions struct {
	ProjectDir string
	CentralDir string
	JSONOutput bool

	// apply-merge only
	Approve     []string
	ApproveSafe bool
}

func newPlanMergeCommand() *cobra.Command {
	opts := &mergeOptions{}

	cmd := &cobra.Command{
		Use:   "plan-merge",
		Short: "Plan merging project documentation into the central tree",
		Long: `Compare every document under the project directory against its target in
the central tree and classify it: new (no target), update (target
unchanged since the last sync), or conflict (target independently
edited since the last sync).

Planning is read-only. Apply the plan with apply-merge.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlanMerge(cmd, opts)
		},
	}

	addMergeFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output the plan as JSON")

	return cmd
}

func newApplyMergeCommand() *cobra.Command {
	opts := &mergeOptions{}

	cmd := &cobra.Command{
		Use:   "apply-merge",
		Short: "Apply an approved merge plan",
		Long: `Re-plan and apply the approved items. Safe items (new and update) are
approved with --approve-safe; conflicts must be approved individually
by id with --approve.

Exit code 2 means conflicts remained unapproved and block the merge.`,
		Example: `  # Apply everything the plan considers safe
  shepherd apply-merge --approve-safe

  # Additionally approve specific conflicts after reviewing them
  shepherd apply-merge --approve-safe --approve billing-003,billing-007`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApplyMerge(cmd, opts)
		},
	}

	addMergeFlags(cmd, opts)
	cmd.Flags().StringSliceVar(&opts.Approve, "approve", nil, "Plan item ids to approve")
	cmd.Flags().BoolVar(&opts.ApproveSafe, "approve-safe", false, "Approve all non-conflict items")

	return cmd
}

func addMergeFlags(cmd *cobra.Command, opts *mergeOptions) {
	cmd.Flags().StringVar(&opts.ProjectDir, "project", "", "Project documentation directory (default from config)")
	cmd.Flags().StringVar(&opts.CentralDir, "central", "", "Central documentation tree (default from config)")
}

func (o *mergeOptions) resolve() (projectDir, centralDir string) {
	projectDir, centralDir = o.ProjectDir, o.CentralDir
	if projectDir == "" {
		projectDir = cfg.ProjectDir
	}
	if centralDir == "" {
		centralDir = cfg.CentralDir
	}
	return projectDir, centralDir
}

func runPlanMerge(cmd *cobra.Command, opts *mergeOptions) error {
	started := time.Now()
	projectDir, centralDir := opts.resolve()

	doc, err := mergeplan.NewFileStore().Load(projectDir)
	if err != nil {
		return err
	}

	planner := mergeplan.NewPlanner(artifact.NewWriter(logger), logger)
	plan, err := planner.Plan(cmd.Context(), projectDir, centralDir, doc)
	if err != nil {
		return err
	}

	if opts.JSONOutput {
		out, err := mergeplan.RenderJSON(plan)
		if err != nil {
			return err
		}
		fmt.Println(out)
	} else {
		fmt.Print(mergeplan.RenderTable(plan))
	}

	recordRun("plan-merge", started, 0, map[string]any{
		"project":   doc.ProjectID,
		"items":     len(plan.Items),
		"conflicts": len(plan.Conflicts),
	})
	return nil
}

func runApplyMerge(cmd *cobra.Command, opts *mergeOptions) error {
	started := time.Now()
	projectDir, centralDir := opts.resolve()

	store := mergeplan.NewFileStore()
	doc, err := store.Load(projectDir)
	if err != nil {
		return err
	}

	planner := mergeplan.NewPlanner(artifact.NewWriter(logger), logger)
	plan, err := planner.Plan(cmd.Context(), projectDir, centralDir, doc)
	if err != nil {
		return err
	}

	approved := make(map[string]bool, len(opts.Approve))
	for _, id := range opts.Approve {
		approved[id] = true
	}
	if opts.ApproveSafe {
		for _, item := range plan.Items {
			approved[item.ID] = true
		}
	}

	result, applyErr := planner.Apply(cmd.Context(), plan.All(), approved)
	if result != nil {
		fmt.Printf("Applied %d, failed %d, skipped %d\n",
			len(result.Applied), len(result.Failed), len(result.Skipped))
		for _, f := range result.Failed {
			logger.Error("item not applied",
				zap.String("item", f.Item.ID),
				zap.String("reason", f.Reason))
		}
	}

	exitCode := 0
	blocked := unapprovedConflicts(plan, approved)
	defer func() {
		recordRun("apply-merge", started, exitCode, map[string]any{
			"project":           doc.ProjectID,
			"applied":           countApplied(result),
			"conflicts_blocked": blocked,
		})
	}()

	if applyErr != nil {
		var partial *mergeplan.PartialApplyFailure
		if errors.As(applyErr, &partial) {
			exitCode = 1
		}
		return applyErr
	}

	mergeplan.MarkSynced(doc, result)
	if err := store.Save(projectDir, doc); err != nil {
		return err
	}

	if blocked > 0 {
		exitCode = 2
		return &exitCodeError{
			code: 2,
			err:  fmt.Errorf("%d unresolved conflicts block the merge — review the plan and approve them by id", blocked),
		}
	}
	return nil
}

func unapprovedConflicts(plan *mergeplan.PlanResult, approved map[string]bool) int {
	n := 0
	for _, c := range plan.Conflicts {
		if !approved[c.ID] {
			n++
		}
	}
	return n
}

func countApplied(result *mergeplan.ApplyResult) int {
	if result == nil {
		return 0
	}
	return len(result.Applied)
}
