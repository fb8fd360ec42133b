// Package source discovers and loads the configuration units that feed
// the assembler: core documents, methodologies, standards, and user
// overrides.
//
// Discovery is stateless — sources are re-read from storage on every
// invocation — and deterministic: identical storage state always yields
// the same ordered result.
//
// Design principles match the rest of the codebase:
// - DIP: Registry is an interface; the assembler and CLI depend on the
//   abstraction so tests can substitute fake sources without storage.
// - SRP: document parsing, validation, and discovery live in separate
//   files.
package source

import (
	"fmt"
	"strings"
)

// --- Source kind enum ---

// Kind categorizes a configuration source.
type Kind string

const (
	KindCore        Kind = "core"
	KindMethodology Kind = "methodology"
	KindStandard    Kind = "standard"
	KindUser        Kind = "user"
)

// validKinds is the set of allowed source kinds.
var validKinds = map[Kind]bool{
	KindCore:        true,
	KindMethodology: true,
	KindStandard:    true,
	KindUser:        true,
}

// ValidateKind returns an error if the kind is not recognized.
func ValidateKind(k Kind) error {
	if !validKinds[k] {
		return fmt.Errorf("invalid source kind %q: must be one of: core, methodology, standard, user", k)
	}
	return nil
}

// --- Verbosity enum ---

// Verbosity marks a section as a compact summary or full detail.
// Detail sections are the first to go under size-bounded compaction.
type Verbosity string

const (
	VerbositySummary Verbosity = "summary"
	VerbosityDetail  Verbosity = "detail"
)

// --- Core data structures ---

// Section is one titled block of a configuration source.
type Section struct {
	Title     string    `yaml:"title" json:"title"`
	Body      string    `yaml:"body" json:"body"`
	Verbosity Verbosity `yaml:"verbosity" json:"verbosity"`
}

// ConfigSource is a structured configuration unit with an explicit
// inclusion order. Core sources are always mandatory and always ordered
// before all others.
type ConfigSource struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Order     int       `json:"order"`
	Mandatory bool      `json:"mandatory"`
	Sections  []Section `json:"sections"`
}

// Selection names the optional sources a caller wants included.
type Selection struct {
	Methodologies map[string]bool
	Standards     map[string]bool
}

// NewSelection builds a Selection from id lists.
func NewSelection(methodologies, standards []string) Selection {
	sel := Selection{
		Methodologies: make(map[string]bool, len(methodologies)),
		Standards:     make(map[string]bool, len(standards)),
	}
	for _, id := range methodologies {
		if id = strings.TrimSpace(id); id != "" {
			sel.Methodologies[id] = true
		}
	}
	for _, id := range standards {
		if id = strings.TrimSpace(id); id != "" {
			sel.Standards[id] = true
		}
	}
	return sel
}

// --- Errors and warnings ---

// ConfigError reports a missing or structurally malformed mandatory
// source. It is fatal: assembly must not proceed past it.
type ConfigError struct {
	SourceID string
	Field    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("source %q: %s", e.SourceID, e.Reason)
	}
	return fmt.Sprintf("source %q: field %q: %s", e.SourceID, e.Field, e.Reason)
}

// UnknownSelectionWarning reports a selected id that matched no
// discovered source. Unrecognized input is tolerated, not rejected —
// the selection is logged and ignored.
type UnknownSelectionWarning struct {
	ID   string
	Kind Kind
}

func (w UnknownSelectionWarning) String() string {
	return fmt.Sprintf("unknown %s id %q: selection ignored", w.Kind, w.ID)
}

// Validate checks the structural requirements of a source document.
// Returns a *ConfigError naming the offending field.
func (s *ConfigSource) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return &ConfigError{SourceID: "(unknown)", Field: "id", Reason: "missing"}
	}
	if err := ValidateKind(s.Kind); err != nil {
		return &ConfigError{SourceID: s.ID, Field: "kind", Reason: err.Error()}
	}
	if strings.TrimSpace(s.Name) == "" {
		return &ConfigError{SourceID: s.ID, Field: "name", Reason: "missing"}
	}
	if strings.TrimSpace(s.Version) == "" {
		return &ConfigError{SourceID: s.ID, Field: "version", Reason: "missing"}
	}
	if len(s.Sections) == 0 {
		return &ConfigError{SourceID: s.ID, Field: "sections", Reason: "source has no sections"}
	}
	for i, sec := range s.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			return &ConfigError{SourceID: s.ID, Field: fmt.Sprintf("sections[%d].title", i), Reason: "missing"}
		}
		if sec.Verbosity != VerbositySummary && sec.Verbosity != VerbosityDetail {
			return &ConfigError{SourceID: s.ID, Field: fmt.Sprintf("sections[%d].verbosity", i), Reason: fmt.Sprintf("invalid verbosity %q", sec.Verbosity)}
		}
	}
	return nil
}
