// Package mergeplan compares project-scoped documents against the
// central documentation tree, classifies each as new, update, or
// conflict, and applies only approved actions.
//
// Planning is read-only and safely re-runnable; applying writes through
// the artifact writer and either completes the batch or reports exactly
// which items succeeded and which failed. Conflicts are first-class
// planning outcomes, never auto-resolved.
package mergeplan

import (
	"fmt"
	"time"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// Lifecycle tracks whether a project's documentation is still being
// produced or has been fully merged into the central tree.
type Lifecycle string

const (
	LifecycleActive Lifecycle = "active"
	LifecycleDone   Lifecycle = "done"
)

// ProjectDoc is the per-project record driving merge planning.
// LastSyncAt is the sync point: the moment the project's documentation
// was last reconciled with the central tree.
type ProjectDoc struct {
	ProjectID  string            `json:"project_id"`
	Path       string            `json:"path"`
	LastSyncAt time.Time         `json:"last_sync_at"`
	Lifecycle  Lifecycle         `json:"lifecycle"`
	Mappings   map[string]string `json:"mappings,omitempty"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

// Action classifies one planned merge item.
type Action string

const (
	ActionNew      Action = "new"
	ActionUpdate   Action = "update"
	ActionConflict Action = "conflict"
)

// MergePlanItem is one document's planned move into the central tree.
type MergePlanItem struct {
	ID             string `json:"id"`
	SourcePath     string `json:"source_path"`
	TargetPath     string `json:"target_path"`
	Action         Action `json:"action"`
	ConflictReason string `json:"conflict_reason,omitempty"`
}

// PlanResult groups plan items with conflicts separated out for
// explicit human decision.
type PlanResult struct {
	ProjectID string          `json:"project_id"`
	Items     []MergePlanItem `json:"items"`
	Conflicts []MergePlanItem `json:"conflicts"`
	PlannedAt string          `json:"planned_at"`
}

// All returns safe items followed by conflicts, in stable order.
func (p *PlanResult) All() []MergePlanItem {
	out := make([]MergePlanItem, 0, len(p.Items)+len(p.Conflicts))
	out = append(out, p.Items...)
	return append(out, p.Conflicts...)
}

// ApplyResult reports exactly which items were written, which failed,
// and which were skipped for lack of approval. There is never an
// ambiguous partial state.
type ApplyResult struct {
	Applied []MergePlanItem `json:"applied"`
	Failed  []FailedItem    `json:"failed"`
	Skipped []MergePlanItem `json:"skipped"`
}

// FailedItem pairs a plan item with the write error that stopped it.
type FailedItem struct {
	Item   MergePlanItem `json:"item"`
	Reason string        `json:"reason"`
}

// Complete reports whether every non-skipped item was applied.
func (r *ApplyResult) Complete() bool {
	return len(r.Failed) == 0
}

// PartialApplyFailure is returned when a batch aborts midway. It
// carries the exact succeeded/failed sets; already-written files are
// not rolled back — external version control is the rollback mechanism.
type PartialApplyFailure struct {
	Result *ApplyResult
	Cause  error
}

func (e *PartialApplyFailure) Error() string {
	return fmt.Sprintf("merge apply aborted after %d of %d writes: %v",
		len(e.Result.Applied), len(e.Result.Applied)+len(e.Result.Failed), e.Cause)
}

func (e *PartialApplyFailure) Unwrap() error { return e.Cause }
