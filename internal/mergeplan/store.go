package mergeplan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the filename of the per-project merge record.
const ProjectFile = "project.json"

// MappingsFile optionally overrides the default path convention; it
// sits beside the project's documents as a yaml table of
// source-relative path → central-relative path.
const MappingsFile = "mappings.yaml"

// Store defines persistence for project records. Abstracted for
// testability.
type Store interface {
	Load(projectDir string) (*ProjectDoc, error)
	Save(projectDir string, doc *ProjectDoc) error
}

// FileStore implements Store on the local filesystem.
type FileStore struct{}

// NewFileStore creates a filesystem-backed project store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Load reads the project record and its optional mappings table.
func (fs *FileStore) Load(projectDir string) (*ProjectDoc, error) {
	path := filepath.Join(projectDir, ProjectFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("project record not found at %s — is this a project docs directory?", path)
		}
		return nil, fmt.Errorf("reading project record: %w", err)
	}

	var doc ProjectDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ProjectFile, err)
	}
	if doc.Lifecycle == "" {
		doc.Lifecycle = LifecycleActive
	}

	mappings, err := loadMappings(projectDir)
	if err != nil {
		return nil, err
	}
	if len(mappings) > 0 {
		doc.Mappings = mappings
	}

	return &doc, nil
}

// Save persists the project record, refreshing its update timestamp.
func (fs *FileStore) Save(projectDir string, doc *ProjectDoc) error {
	doc.UpdatedAt = timeNow().UTC().Format(time.RFC3339)
	if doc.CreatedAt == "" {
		doc.CreatedAt = doc.UpdatedAt
	}

	// Mappings live in their own yaml file, not in the record.
	record := *doc
	record.Mappings = nil

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project record: %w", err)
	}

	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	return os.WriteFile(filepath.Join(projectDir, ProjectFile), data, 0o644)
}

// loadMappings reads the optional mappings.yaml. Absence is fine — the
// default convention applies.
func loadMappings(projectDir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(projectDir, MappingsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", MappingsFile, err)
	}

	var raw struct {
		Mappings map[string]string `yaml:"mappings"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", MappingsFile, err)
	}
	return raw.Mappings, nil
}
