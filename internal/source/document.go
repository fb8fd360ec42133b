package source

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the on-disk yaml shape of a source file. A file carries
// either an explicit sections list, or a summary/rules dual split, or a
// flat rules table alone — the latter two are normalized into sections.
type document struct {
	Name      string    `yaml:"name"`
	Version   string    `yaml:"version"`
	Kind      Kind      `yaml:"kind"`
	Order     int       `yaml:"order"`
	Mandatory bool      `yaml:"mandatory"`
	Sections  []Section `yaml:"sections"`
	Summary   string    `yaml:"summary"`
	Rules     string    `yaml:"rules"`
}

// ParseDocument decodes a source file into a validated ConfigSource.
// The id is derived by the caller (filename stem); kind may be forced
// by the directory the file was found in.
func ParseDocument(id string, data []byte, kind Kind) (*ConfigSource, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{SourceID: id, Reason: fmt.Sprintf("parsing yaml: %v", err)}
	}

	if doc.Kind == "" {
		doc.Kind = kind
	}

	src := &ConfigSource{
		ID:        id,
		Kind:      doc.Kind,
		Name:      doc.Name,
		Version:   doc.Version,
		Order:     doc.Order,
		Mandatory: doc.Mandatory,
		Sections:  normalizeSections(doc),
	}

	// Core sources are mandatory whether the file says so or not.
	if src.Kind == KindCore {
		src.Mandatory = true
	}

	if err := src.Validate(); err != nil {
		return nil, err
	}
	return src, nil
}

// normalizeSections converts the summary/rules split (or a flat rules
// table) into the canonical sections list. An explicit sections list
// wins; summary/rules are ignored alongside it.
func normalizeSections(doc document) []Section {
	if len(doc.Sections) > 0 {
		sections := make([]Section, len(doc.Sections))
		copy(sections, doc.Sections)
		for i := range sections {
			if sections[i].Verbosity == "" {
				sections[i].Verbosity = VerbositySummary
			}
		}
		return sections
	}

	var sections []Section
	if strings.TrimSpace(doc.Summary) != "" {
		sections = append(sections, Section{
			Title:     doc.Name,
			Body:      strings.TrimRight(doc.Summary, "\n"),
			Verbosity: VerbositySummary,
		})
	}
	if strings.TrimSpace(doc.Rules) != "" {
		title := doc.Name
		if len(sections) > 0 {
			title = doc.Name + " — rules"
		}
		sections = append(sections, Section{
			Title:     title,
			Body:      strings.TrimRight(doc.Rules, "\n"),
			Verbosity: VerbosityDetail,
		})
	}
	return sections
}
