package assemble

import (
	"fmt"
	"strings"
	"time"
)

// headerDelimiter is the fixed delimiter line opening and closing the
// generated header block.
const headerDelimiter = "# ================================================================"

// Document is an assembled artifact: an ordered list of entries plus a
// single timestamp header field, isolated so re-generation produces
// minimal diffs.
type Document struct {
	ArtifactName string           `json:"artifact_name"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Entries      []Entry          `json:"entries"`
	Collisions   []TitleCollision `json:"collisions,omitempty"`
	Dropped      []string         `json:"dropped,omitempty"`
	ReplacedCore []string         `json:"replaced_core,omitempty"`
}

// Render produces the final text artifact. Everything below the header
// is a pure function of the entries; the timestamp is confined to its
// own header line so two runs over identical sources differ only there.
func (d *Document) Render() string {
	var b strings.Builder

	name := d.ArtifactName
	if name == "" {
		name = "assembled configuration"
	}

	b.WriteString(headerDelimiter + "\n")
	fmt.Fprintf(&b, "# %s — generated by shepherd. DO NOT EDIT.\n", name)
	fmt.Fprintf(&b, "# generated_at: %s\n", d.GeneratedAt.UTC().Format(time.RFC3339))
	if len(d.Dropped) > 0 {
		fmt.Fprintf(&b, "# compacted: %d detail section(s) dropped to fit the size budget\n", len(d.Dropped))
	}
	b.WriteString(headerDelimiter + "\n\n")

	for i, e := range d.Entries {
		fmt.Fprintf(&b, "## %s\n\n", e.Section.Title)
		body := strings.TrimRight(e.Section.Body, "\n")
		if body != "" {
			b.WriteString(body + "\n")
		}
		if i < len(d.Entries)-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

// SourceIDs returns the distinct source ids contributing entries, in
// document order.
func (d *Document) SourceIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	for _, e := range d.Entries {
		if !seen[e.SourceID] {
			seen[e.SourceID] = true
			ids = append(ids, e.SourceID)
		}
	}
	return ids
}
