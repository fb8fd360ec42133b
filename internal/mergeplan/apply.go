package mergeplan

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/nvalverde/shepherd/internal/artifact"
	"go.uber.org/zap"
)

// ChangeControlAuthor is the author placeholder recorded in appended
// change-control entries until a real identity is threaded through.
const ChangeControlAuthor = "(pending)"

// Apply executes only the approved items of a plan, writing each
// target with an appended change-control entry. A conflict item is
// never applied unless its id is in the approved set.
//
// The first failing write aborts the remaining items; the returned
// ApplyResult reports the exact succeeded/failed/skipped sets, and the
// error is a *PartialApplyFailure. Once a batch has begun writing it
// runs to that explicit end — it is not cancelled mid-batch, so the
// context is only consulted before the first write.
func (p *Planner) Apply(ctx context.Context, items []MergePlanItem, approved map[string]bool) (*ApplyResult, error) {
	result := &ApplyResult{}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var batch []MergePlanItem
	for _, item := range items {
		if !approved[item.ID] {
			result.Skipped = append(result.Skipped, item)
			continue
		}
		batch = append(batch, item)
	}

	aborted := false
	var cause error
	for _, item := range batch {
		if aborted {
			result.Failed = append(result.Failed, FailedItem{Item: item, Reason: "batch aborted by earlier failure"})
			continue
		}
		if err := p.applyOne(item); err != nil {
			p.logger.Error("merge write failed",
				zap.String("item", item.ID),
				zap.String("target", item.TargetPath),
				zap.Error(err))
			result.Failed = append(result.Failed, FailedItem{Item: item, Reason: err.Error()})
			aborted = true
			cause = err
			continue
		}
		result.Applied = append(result.Applied, item)
	}

	if aborted {
		return result, &PartialApplyFailure{Result: result, Cause: cause}
	}
	return result, nil
}

// applyOne writes a single item's source content to its target with a
// change-control trailer. New targets skip the backup; updates and
// approved conflicts preserve one.
func (p *Planner) applyOne(item MergePlanItem) error {
	data, err := os.ReadFile(item.SourcePath)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	entry := artifact.ChangeControlEntry{
		Version: nextVersion(item.TargetPath),
		Date:    timeNow().UTC().Format("2006-01-02"),
		Author:  ChangeControlAuthor,
	}
	content := artifact.AppendChangeControl(data, entry)

	if item.Action == ActionNew {
		return p.writer.WriteNoBackup(item.TargetPath, content)
	}
	return p.writer.Write(item.TargetPath, content)
}

var versionRe = regexp.MustCompile(`<!-- change-control: version=(\d+) `)

// nextVersion reads the target's current change-control version and
// bumps it. A missing or unversioned target starts at 1.
func nextVersion(targetPath string) int {
	data, err := os.ReadFile(targetPath)
	if err != nil {
		return 1
	}
	matches := versionRe.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return 1
	}
	highest := 0
	for _, m := range matches {
		if v, err := strconv.Atoi(string(m[1])); err == nil && v > highest {
			highest = v
		}
	}
	return highest + 1
}

// MarkSynced transitions the project after a fully applied batch: the
// sync point moves to now and the lifecycle flips active → done.
//
// Skipped items block the transition. Advancing the sync point past an
// unapproved conflict would reclassify it as a plain update on the
// next plan, losing the conflict.
func MarkSynced(doc *ProjectDoc, result *ApplyResult) {
	if !result.Complete() || len(result.Skipped) > 0 {
		return
	}
	now := timeNow().UTC()
	doc.LastSyncAt = now
	doc.UpdatedAt = now.Format(time.RFC3339)
	doc.Lifecycle = LifecycleDone
}
