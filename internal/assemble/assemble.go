// Package assemble merges a selected set of configuration sources into
// one ordered output document.
//
// The section order is fixed: core → methodology summaries →
// methodology detail (only under the detail option) → standards →
// user overrides. Assembly is deterministic and idempotent: the same
// source set renders byte-identical output except for the single
// timestamp line in the header.
package assemble

import (
	"fmt"
	"time"

	"github.com/nvalverde/shepherd/internal/source"
	"go.uber.org/zap"
)

// timeNow is a package-level variable for testability.
// Tests can replace this to control the header timestamp.
var timeNow = time.Now

// Options control one assembly run.
type Options struct {
	// Detail includes methodology detail sections (the rules split) in
	// their own group after the summaries. Off by default — the
	// assembler consumes summaries unless explicitly asked.
	Detail bool

	// MaxBytes bounds the rendered size. When the document exceeds it,
	// detail sections are dropped (last first) until it fits; summary
	// sections are always retained. Zero means unbounded.
	MaxBytes int

	// ArtifactName appears in the header block.
	ArtifactName string
}

// Entry is one section of the assembled document, tagged with the
// source it came from.
type Entry struct {
	SourceID string         `json:"source_id"`
	Section  source.Section `json:"section"`
}

// TitleCollision records two append-semantics sections sharing a title.
// Collisions are flagged, never deduplicated.
type TitleCollision struct {
	Title     string   `json:"title"`
	SourceIDs []string `json:"source_ids"`
}

// Assembler merges sources into documents. It holds no per-run state.
type Assembler struct {
	logger *zap.Logger
}

// New creates an Assembler.
func New(logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger}
}

// Assemble builds a Document from the core set, the selected optional
// sources, and any extra override sections supplied directly by the
// caller.
//
// Core sources use replace semantics: the latest core source (by
// discovery order) wins outright, no partial merging. Methodology and
// standard sections use append semantics: inserted verbatim, with title
// collisions flagged on the document.
func (a *Assembler) Assemble(core, selected []source.ConfigSource, overrides []source.Section, opts Options) (*Document, error) {
	if len(core) == 0 {
		return nil, &source.ConfigError{SourceID: "(core)", Reason: "assembly requires at least one core source"}
	}

	doc := &Document{
		ArtifactName: opts.ArtifactName,
		GeneratedAt:  timeNow().UTC(),
	}

	// Replace semantics: only the winning (last-ordered) core source
	// contributes sections. The losers are recorded for transparency.
	winner := core[len(core)-1]
	for _, loser := range core[:len(core)-1] {
		doc.ReplacedCore = append(doc.ReplacedCore, loser.ID)
	}
	for _, sec := range winner.Sections {
		doc.Entries = append(doc.Entries, Entry{SourceID: winner.ID, Section: sec})
	}

	var methodologies, standards, users []source.ConfigSource
	for _, s := range selected {
		switch s.Kind {
		case source.KindMethodology:
			methodologies = append(methodologies, s)
		case source.KindStandard:
			standards = append(standards, s)
		case source.KindUser:
			users = append(users, s)
		case source.KindCore:
			return nil, fmt.Errorf("core source %q passed in the selected set", s.ID)
		}
	}

	seen := newCollisionTracker()

	// Methodology summaries, then (optionally) methodology detail as
	// its own group so summaries of all methodologies read together.
	for _, m := range methodologies {
		for _, sec := range m.Sections {
			if sec.Verbosity != source.VerbositySummary {
				continue
			}
			seen.record(doc, sec.Title, m.ID)
			doc.Entries = append(doc.Entries, Entry{SourceID: m.ID, Section: sec})
		}
	}
	if opts.Detail {
		for _, m := range methodologies {
			for _, sec := range m.Sections {
				if sec.Verbosity != source.VerbosityDetail {
					continue
				}
				seen.record(doc, sec.Title, m.ID)
				doc.Entries = append(doc.Entries, Entry{SourceID: m.ID, Section: sec})
			}
		}
	}

	// Standards contribute all their sections; detail-level ones are
	// the first dropped under compaction.
	for _, s := range standards {
		for _, sec := range s.Sections {
			seen.record(doc, sec.Title, s.ID)
			doc.Entries = append(doc.Entries, Entry{SourceID: s.ID, Section: sec})
		}
	}

	// User overrides close the document so they can contradict (and
	// therefore override) anything above them.
	for _, u := range users {
		for _, sec := range u.Sections {
			doc.Entries = append(doc.Entries, Entry{SourceID: u.ID, Section: sec})
		}
	}
	for _, sec := range overrides {
		doc.Entries = append(doc.Entries, Entry{SourceID: "(override)", Section: sec})
	}

	a.compact(doc, opts.MaxBytes)

	for _, c := range doc.Collisions {
		a.logger.Warn("section title collision",
			zap.String("title", c.Title),
			zap.Strings("sources", c.SourceIDs))
	}

	return doc, nil
}

// compact drops detail sections (last first) until the rendered
// document fits maxBytes. Summary sections are always retained — this
// is the documented lossy policy, not a failure path.
func (a *Assembler) compact(doc *Document, maxBytes int) {
	if maxBytes <= 0 {
		return
	}

	for len(doc.Render()) > maxBytes {
		idx := -1
		for i := len(doc.Entries) - 1; i >= 0; i-- {
			if doc.Entries[i].Section.Verbosity == source.VerbosityDetail {
				idx = i
				break
			}
		}
		if idx < 0 {
			// Only summaries left — retained even over budget.
			return
		}
		dropped := doc.Entries[idx]
		doc.Entries = append(doc.Entries[:idx], doc.Entries[idx+1:]...)
		doc.Dropped = append(doc.Dropped, dropped.Section.Title)
		a.logger.Info("compaction dropped detail section",
			zap.String("title", dropped.Section.Title),
			zap.String("source", dropped.SourceID))
	}
}

// collisionTracker flags duplicate titles across append-semantics
// sections.
type collisionTracker struct {
	firstSource map[string]string
	flagged     map[string]int // title -> index into doc.Collisions
}

func newCollisionTracker() *collisionTracker {
	return &collisionTracker{
		firstSource: make(map[string]string),
		flagged:     make(map[string]int),
	}
}

func (c *collisionTracker) record(doc *Document, title, sourceID string) {
	first, ok := c.firstSource[title]
	if !ok {
		c.firstSource[title] = sourceID
		return
	}
	if idx, ok := c.flagged[title]; ok {
		doc.Collisions[idx].SourceIDs = append(doc.Collisions[idx].SourceIDs, sourceID)
		return
	}
	doc.Collisions = append(doc.Collisions, TitleCollision{
		Title:     title,
		SourceIDs: []string{first, sourceID},
	})
	c.flagged[title] = len(doc.Collisions) - 1
}
