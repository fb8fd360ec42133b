package claims

import (
	"sort"
	"strings"
)

// Correction templates, substituted with the claimed path. These are
// the exact sentences relayed to the user in place of a false claim.
const (
	createFalseTemplate = "The prior step reported creating {path}, but verification found no such file. The operation may have failed silently."
	modifyFalseTemplate = "The prior step reported modifying {path}, but verification shows no change was recorded."
	deleteFalseTemplate = "The prior step reported removing {path}, but verification shows the file still exists."
)

// CorrectionFor renders the correction template for a failed claim.
func CorrectionFor(claim Claim) string {
	var tpl string
	switch claim.Kind {
	case OpCreate:
		tpl = createFalseTemplate
	case OpModify:
		tpl = modifyFalseTemplate
	case OpDelete:
		tpl = deleteFalseTemplate
	default:
		return ""
	}
	return strings.ReplaceAll(tpl, "{path}", claim.Path)
}

// Rewrite replaces the originating span of every unverified claim with
// its correction template. All other text is left untouched, and
// multiple corrections preserve original ordering.
func Rewrite(original string, results []VerificationResult) string {
	var failed []VerificationResult
	for _, r := range results {
		if !r.Verified {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return original
	}

	sort.SliceStable(failed, func(i, j int) bool {
		return failed[i].Claim.Span.Start < failed[j].Claim.Span.Start
	})

	var b strings.Builder
	cursor := 0
	for _, r := range failed {
		span := r.Claim.Span
		if span.Start < cursor || span.End > len(original) {
			// Overlapping or stale span — leave the text alone rather
			// than corrupt it.
			continue
		}
		b.WriteString(original[cursor:span.Start])
		b.WriteString(CorrectionFor(r.Claim))
		cursor = span.End
	}
	b.WriteString(original[cursor:])
	return b.String()
}
