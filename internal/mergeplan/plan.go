package mergeplan

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Planner computes and applies merge plans.
type Planner struct {
	writer docWriter
	logger *zap.Logger
}

// docWriter is the slice of the artifact writer the planner needs.
type docWriter interface {
	Write(path string, content []byte) error
	WriteNoBackup(path string, content []byte) error
}

// NewPlanner creates a Planner writing through w.
func NewPlanner(w docWriter, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{writer: w, logger: logger}
}

// Plan walks every document under the project's active folder, maps it
// to its central target path, and classifies it:
//
//   - new: no file exists at the target path.
//   - update: target exists, content differs, and the target was last
//     modified before the project's sync point.
//   - conflict: target exists, content differs, and the target was
//     modified after the sync point — it was independently edited since
//     the project began.
//
// Plan is read-only, cancellable, and safely re-runnable.
func (p *Planner) Plan(ctx context.Context, projectDir, centralDir string, doc *ProjectDoc) (*PlanResult, error) {
	result := &PlanResult{
		ProjectID: doc.ProjectID,
		PlannedAt: timeNow().UTC().Format(time.RFC3339),
	}

	sources, err := listDocs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("scanning project docs: %w", err)
	}

	for i, rel := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := MapTarget(rel, doc)
		item := MergePlanItem{
			ID:         fmt.Sprintf("%s-%03d", doc.ProjectID, i+1),
			SourcePath: filepath.Join(projectDir, rel),
			TargetPath: filepath.Join(centralDir, target),
		}

		action, reason, err := classify(item.SourcePath, item.TargetPath, doc.LastSyncAt)
		if err != nil {
			return nil, err
		}
		item.Action = action
		item.ConflictReason = reason

		if action == ActionConflict {
			result.Conflicts = append(result.Conflicts, item)
		} else if action != "" {
			result.Items = append(result.Items, item)
		}
	}

	p.logger.Info("merge plan computed",
		zap.String("project", doc.ProjectID),
		zap.Int("items", len(result.Items)),
		zap.Int("conflicts", len(result.Conflicts)))

	return result, nil
}

// classify decides the action for one source/target pair. An empty
// action means the pair is already in sync and needs nothing.
func classify(sourcePath, targetPath string, lastSyncAt time.Time) (Action, string, error) {
	srcData, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", "", fmt.Errorf("reading source %s: %w", sourcePath, err)
	}

	targetInfo, err := os.Stat(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ActionNew, "", nil
		}
		return "", "", fmt.Errorf("stating target %s: %w", targetPath, err)
	}

	targetData, err := os.ReadFile(targetPath)
	if err != nil {
		return "", "", fmt.Errorf("reading target %s: %w", targetPath, err)
	}

	if bytes.Equal(stripChangeControl(srcData), stripChangeControl(targetData)) {
		return "", "", nil
	}

	if targetInfo.ModTime().After(lastSyncAt) {
		reason := fmt.Sprintf("target modified %s, after sync point %s",
			targetInfo.ModTime().UTC().Format(time.RFC3339),
			lastSyncAt.UTC().Format(time.RFC3339))
		return ActionConflict, reason, nil
	}
	return ActionUpdate, "", nil
}

// MapTarget resolves a project-relative document path to its
// central-tree-relative target. An explicit mapping on the project
// wins; otherwise the relative path is mirrored under the central
// root, prefixed by the project id.
func MapTarget(rel string, doc *ProjectDoc) string {
	rel = filepath.ToSlash(rel)
	if mapped, ok := doc.Mappings[rel]; ok {
		return filepath.FromSlash(mapped)
	}
	return filepath.Join(doc.ProjectID, filepath.FromSlash(rel))
}

// listDocs returns the markdown documents under dir, relative paths in
// sorted order so plans are deterministic.
func listDocs(dir string) ([]string, error) {
	var docs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		docs = append(docs, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(docs)
	return docs, nil
}

// stripChangeControl drops appended change-control trailers before
// comparing, so a previously merged document doesn't read as differing
// solely because of its own trailer.
func stripChangeControl(data []byte) []byte {
	lines := bytes.Split(data, []byte("\n"))
	var kept [][]byte
	for _, l := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(l), []byte("<!-- change-control:")) {
			continue
		}
		kept = append(kept, l)
	}
	return bytes.TrimRight(bytes.Join(kept, []byte("\n")), "\n")
}
