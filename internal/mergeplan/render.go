package mergeplan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderTable produces the human-readable plan as a text table, with
// conflicts grouped after safe items so the decision surface is
// obvious.
func RenderTable(plan *PlanResult) string {
	var b strings.Builder

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Action", "Source", "Target", "Reason"})
	for _, item := range plan.Items {
		t.AppendRow(table.Row{item.ID, string(item.Action), item.SourcePath, item.TargetPath, ""})
	}
	if len(plan.Conflicts) > 0 {
		t.AppendSeparator()
		for _, item := range plan.Conflicts {
			t.AppendRow(table.Row{item.ID, string(item.Action), item.SourcePath, item.TargetPath, item.ConflictReason})
		}
	}

	fmt.Fprintf(&b, "Merge plan for project %s (%d safe, %d conflict)\n\n",
		plan.ProjectID, len(plan.Items), len(plan.Conflicts))
	b.WriteString(t.Render())
	b.WriteString("\n")

	if len(plan.Conflicts) > 0 {
		b.WriteString("\nConflicts require explicit approval before they are applied.\n")
	}
	return b.String()
}

// RenderJSON produces the machine-readable structure for programmatic
// approval.
func RenderJSON(plan *PlanResult) (string, error) {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling plan: %w", err)
	}
	return string(data), nil
}
