package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Subdirectories of the sources root, one per kind.
const (
	CoreDir          = "core"
	MethodologiesDir = "methodologies"
	StandardsDir     = "standards"
	UserDir          = "user"
)

// Registry is the discovery abstraction the assembler and CLI depend
// on. Implementations must be deterministic: identical storage state
// yields identical ordered output, every time.
type Registry interface {
	// LoadCore returns all mandatory sources ordered by Order. It fails
	// with a *ConfigError if any mandatory source is missing or
	// structurally malformed.
	LoadCore(ctx context.Context) ([]ConfigSource, error)

	// LoadSelected returns the optional sources matching the selection.
	// Unknown ids produce non-fatal warnings, not errors.
	LoadSelected(ctx context.Context, sel Selection) ([]ConfigSource, []UnknownSelectionWarning, error)
}

// FileRegistry discovers sources under a root directory laid out as
// core/, methodologies/, standards/, user/ — one yaml file per source,
// id taken from the filename stem.
type FileRegistry struct {
	root   string
	logger *zap.Logger
}

// NewFileRegistry creates a filesystem-backed registry rooted at dir.
func NewFileRegistry(dir string, logger *zap.Logger) *FileRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRegistry{root: dir, logger: logger}
}

// LoadCore loads every source under core/ plus any user overrides
// marked mandatory. An empty or missing core/ directory is a
// *ConfigError — the assembled artifact is meaningless without it.
func (r *FileRegistry) LoadCore(ctx context.Context) ([]ConfigSource, error) {
	sources, err := r.loadDir(ctx, CoreDir, KindCore)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, &ConfigError{SourceID: "(core)", Reason: fmt.Sprintf("no core sources found under %s", filepath.Join(r.root, CoreDir))}
	}

	overrides, err := r.loadDir(ctx, UserDir, KindUser)
	if err != nil {
		return nil, err
	}
	for _, s := range overrides {
		if s.Mandatory {
			sources = append(sources, s)
		}
	}

	sortSources(sources)
	return sources, nil
}

// LoadSelected loads the methodologies and standards named by the
// selection, plus the optional user override sources (user overrides
// are always included — they are the caller's own). Overrides marked
// mandatory belong to LoadCore and are excluded here so callers can
// combine both results without duplication. Unknown ids are reported
// as warnings and logged, never as errors.
func (r *FileRegistry) LoadSelected(ctx context.Context, sel Selection) ([]ConfigSource, []UnknownSelectionWarning, error) {
	var result []ConfigSource
	var warnings []UnknownSelectionWarning

	methodologies, err := r.loadDir(ctx, MethodologiesDir, KindMethodology)
	if err != nil {
		return nil, nil, err
	}
	picked, unknown := pick(methodologies, sel.Methodologies, KindMethodology)
	result = append(result, picked...)
	warnings = append(warnings, unknown...)

	standards, err := r.loadDir(ctx, StandardsDir, KindStandard)
	if err != nil {
		return nil, nil, err
	}
	picked, unknown = pick(standards, sel.Standards, KindStandard)
	result = append(result, picked...)
	warnings = append(warnings, unknown...)

	overrides, err := r.loadDir(ctx, UserDir, KindUser)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range overrides {
		if s.Mandatory {
			continue
		}
		result = append(result, s)
	}

	for _, w := range warnings {
		r.logger.Warn("unknown selection id ignored",
			zap.String("id", w.ID),
			zap.String("kind", string(w.Kind)))
	}

	sortSources(result)
	return result, warnings, nil
}

// loadDir reads every *.yaml / *.yml file in one kind directory.
// A missing directory is not an error — it just has no sources.
// A malformed optional source is skipped with a warning; a malformed
// mandatory source is fatal.
func (r *FileRegistry) loadDir(ctx context.Context, sub string, kind Kind) ([]ConfigSource, error) {
	dir := filepath.Join(r.root, sub)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sources directory %s: %w", dir, err)
	}

	// Sort entries by name so parse order (and therefore any id
	// collisions or warnings) is deterministic.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var sources []ConfigSource
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", path, err)
		}

		src, err := ParseDocument(idFromFilename(entry.Name()), data, kind)
		if err != nil {
			if kind == KindCore || (kind == KindUser && declaresMandatory(data)) {
				return nil, err
			}
			r.logger.Warn("skipping malformed optional source",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		sources = append(sources, *src)
	}
	return sources, nil
}

// declaresMandatory reports whether a source file that failed full
// validation still declares mandatory: true. A file whose yaml cannot
// be parsed at all cannot claim mandatory status.
func declaresMandatory(data []byte) bool {
	var doc struct {
		Mandatory bool `yaml:"mandatory"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false
	}
	return doc.Mandatory
}

// pick filters sources to the selected ids and reports ids that
// matched nothing.
func pick(sources []ConfigSource, wanted map[string]bool, kind Kind) ([]ConfigSource, []UnknownSelectionWarning) {
	byID := make(map[string]ConfigSource, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	// Iterate selection in sorted order for deterministic warnings.
	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var picked []ConfigSource
	var warnings []UnknownSelectionWarning
	for _, id := range ids {
		src, ok := byID[id]
		if !ok {
			warnings = append(warnings, UnknownSelectionWarning{ID: id, Kind: kind})
			continue
		}
		picked = append(picked, src)
	}
	return picked, warnings
}

// sortSources orders by (order, id) — the tiebreak keeps discovery
// deterministic when two sources share an order value.
func sortSources(sources []ConfigSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Order != sources[j].Order {
			return sources[i].Order < sources[j].Order
		}
		return sources[i].ID < sources[j].ID
	})
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func idFromFilename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
