package claims

import "strings"

// Span locates a claim's originating text within the scanned input.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Claim is a file-operation assertion extracted from free text.
type Claim struct {
	Kind       OpKind `json:"kind"`
	Path       string `json:"path"`
	PatternTag string `json:"pattern_tag"`
	Span       Span   `json:"span"`
}

// DetectClaims matches text against the versioned phrase table and
// returns the claims found, in original text order. A sentence whose
// phrase matches but yields no extractable path produces no claim —
// ambiguity is treated as "no claim detected", never as an error.
func DetectClaims(text string) []Claim {
	var claims []Claim
	for _, s := range splitSentences(text) {
		for _, p := range patternTable {
			loc := p.re.FindStringIndex(s.Text)
			if loc == nil {
				continue
			}
			path := extractPath(s.Text[loc[1]:])
			if path == "" {
				// Matched phrase, no path: not a claim.
				continue
			}
			claims = append(claims, Claim{
				Kind:       p.Kind,
				Path:       path,
				PatternTag: p.Tag,
				Span:       s,
			})
			break // one claim per sentence
		}
	}
	return claims
}

// extractPath returns the first path-like token in the text following
// a matched phrase, or "" when nothing qualifies.
func extractPath(after string) string {
	for rest := after; ; {
		tok := pathRe.FindString(rest)
		if tok == "" {
			return ""
		}
		if !nonPathTokens[strings.ToLower(tok)] {
			return tok
		}
		idx := strings.Index(rest, tok)
		rest = rest[idx+len(tok):]
	}
}

// nonPathTokens are dotted tokens that look like paths but never are.
var nonPathTokens = map[string]bool{
	"e.g": true, "i.e": true, "etc": true, "vs": true,
}

// splitSentences breaks text into sentence spans with offsets into the
// original string. A boundary is a newline, or one of . ! ? followed by
// whitespace or end of input — so dots inside filenames do not split.
func splitSentences(text string) []Span {
	var spans []Span
	start := 0
	flush := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			lead := strings.Index(raw, trimmed)
			spans = append(spans, Span{
				Start: start + lead,
				End:   start + lead + len(trimmed),
				Text:  trimmed,
			})
		}
		start = end
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' {
			flush(i)
			start = i + 1
			continue
		}
		if c == '.' || c == '!' || c == '?' {
			atEnd := i == len(text)-1
			if atEnd || text[i+1] == ' ' || text[i+1] == '\t' || text[i+1] == '\n' {
				flush(i + 1)
			}
		}
	}
	if start < len(text) {
		flush(len(text))
	}
	return spans
}
