// Package claims scans free-text sub-agent output for file-operation
// claims, checks them against actual filesystem state, and rewrites
// false claims with correction text.
//
// The package is a gatekeeper: it sits between arbitrary agent output
// and the end user and is strictly read-only — it never creates,
// modifies, or deletes anything itself.
//
// Detection is heuristic by nature. The phrase patterns live in a
// versioned table decoupled from verification, so new phrasings can be
// added without touching the verification logic.
package claims

import "regexp"

// PatternTableVersion identifies the phrase table in effect. Bump it
// whenever a variant is added or changed so downstream consumers can
// tell which table produced a claim.
const PatternTableVersion = "1"

// OpKind is the file operation a claim asserts.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpModify OpKind = "modify"
	OpDelete OpKind = "delete"
)

// Pattern is one phrase variant for one operation kind. The regexp
// matches the claiming verb phrase; the path is extracted separately
// from the surrounding sentence (see detect.go).
type Pattern struct {
	Kind OpKind
	Tag  string // stable name for the variant, e.g. "create/past-simple"
	re   *regexp.Regexp
}

// patternTable is the fixed, versioned set of phrase variants.
// Ordering matters: within a sentence the first matching pattern wins,
// so more specific variants come first.
var patternTable = []Pattern{
	// --- create ---
	{OpCreate, "create/past-simple", regexp.MustCompile(`(?i)\b(?:I(?:'ve| have)? |successfully )?created\b`)},
	{OpCreate, "create/wrote-new", regexp.MustCompile(`(?i)\bwrote (?:a |the )?new\b`)},
	{OpCreate, "create/added-file", regexp.MustCompile(`(?i)\badded (?:a |the )?(?:new )?file\b`)},
	{OpCreate, "create/generated", regexp.MustCompile(`(?i)\b(?:I(?:'ve| have)? )?generated\b`)},
	// --- modify ---
	{OpModify, "modify/past-simple", regexp.MustCompile(`(?i)\b(?:I(?:'ve| have)? |successfully )?(?:modified|updated|edited)\b`)},
	{OpModify, "modify/changed", regexp.MustCompile(`(?i)\b(?:I(?:'ve| have)? )?(?:changed|rewrote|patched)\b`)},
	{OpModify, "modify/applied-to", regexp.MustCompile(`(?i)\bapplied (?:the |my )?(?:changes|edits|fix(?:es)?) to\b`)},
	// --- delete ---
	{OpDelete, "delete/past-simple", regexp.MustCompile(`(?i)\b(?:I(?:'ve| have)? |successfully )?(?:deleted|removed)\b`)},
	{OpDelete, "delete/cleaned-up", regexp.MustCompile(`(?i)\bcleaned up\b`)},
}

// Patterns returns a copy of the phrase table for the current version.
func Patterns() []Pattern {
	out := make([]Pattern, len(patternTable))
	copy(out, patternTable)
	return out
}

// pathRe matches a path-like token: something with a file extension or
// a directory separator. A matched phrase with no such token yields no
// claim — false negatives are acceptable, false positives are not.
var pathRe = regexp.MustCompile(`[A-Za-z0-9_~][A-Za-z0-9_.~/\\-]*(?:/[A-Za-z0-9_.~\\-]+|\.[A-Za-z0-9]{1,8})`)
