package pattern

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	bracketTag  = regexp.MustCompile(`\[[^\[\]]*\]`)
	replyPrefix = regexp.MustCompile(`^(?:re|fwd|fw)\s*:\s*`)
)

// NormalizeSubject reduces a subject line to a stable comparison key:
// NFKC-folded, lower-cased, with reply/forward prefixes and bracketed tags
// removed and whitespace collapsed. NormalizeSubject(NormalizeSubject(s))
// equals NormalizeSubject(s).
//
// Each pass strips one level of nested tags, so the loop runs until nothing
// changes.
func NormalizeSubject(s string) string {
	for {
		next := normalizePass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizePass(s string) string {
	// cases.Caser is stateful; one per call.
	s = cases.Lower(language.Und).String(norm.NFKC.String(s))
	s = bracketTag.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	for {
		stripped := replyPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return s
}
