package answers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes text and removes combining marks so that accented
// characters compare equal to their base forms.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

const punctuationSet = `.,;:!?'"()[]{}<>|*` + "`" + `“”‘’…#@$%^+=~`

var (
	whitespacePattern    = regexp.MustCompile(`\s+`)
	interrogativePattern = regexp.MustCompile(`^(?:(?:what|who)\s+(?:is|are|was|were)|whats|whos)\s+`)
	articlePattern       = regexp.MustCompile(`^(?:the|a|an)\s+`)
)

// Normalize canonicalizes free text for comparison: diacritics are stripped,
// case is folded, "&" becomes "and", punctuation is dropped, and whitespace
// is collapsed. The function is deterministic and idempotent.
func Normalize(raw string) string {
	folded, _, err := transform.String(stripMarks, raw)
	if err != nil {
		folded = raw
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "&", " and ")

	var builder strings.Builder
	builder.Grow(len(folded))
	for _, r := range folded {
		switch {
		case strings.ContainsRune(punctuationSet, r):
			// dropped
		case r == '-' || r == '/' || r == '\\':
			builder.WriteRune(' ')
		default:
			builder.WriteRune(r)
		}
	}

	collapsed := whitespacePattern.ReplaceAllString(builder.String(), " ")
	return strings.TrimSpace(collapsed)
}

// NormalizeAnswer applies Normalize and additionally strips leading
// interrogative phrases ("what is", "who were", "whats") and leading
// articles ("the", "a", "an"). Stripping repeats until a fixed point so
// stacked prefixes ("who is the a priori argument") reduce in one call and
// the function stays idempotent. This is the pass used for answer matching.
func NormalizeAnswer(raw string) string {
	cleaned := Normalize(raw)
	for {
		next := interrogativePattern.ReplaceAllString(cleaned, "")
		next = articlePattern.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == cleaned {
			return cleaned
		}
		cleaned = next
	}
}
