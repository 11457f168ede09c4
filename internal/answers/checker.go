package answers

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// defaultToleranceRatio is the fraction of the candidate's length allowed as
// edit distance. Short answers tolerate no typos, long answers several.
const defaultToleranceRatio = 0.2

// CheckerConfig tunes the approximate-matching policy.
type CheckerConfig struct {
	ToleranceRatio float64
}

// Checker decides whether a user's free-text answer is equivalent to a
// candidate answer. It is directional: the candidate sets the tolerance.
type Checker struct {
	ratio float64
}

// NewChecker constructs a Checker, falling back to the default tolerance
// when the configured ratio is not positive.
func NewChecker(cfg CheckerConfig) *Checker {
	ratio := cfg.ToleranceRatio
	if ratio <= 0 {
		ratio = defaultToleranceRatio
	}
	return &Checker{ratio: ratio}
}

// IsEquivalent reports whether userText matches candidateText after
// normalization, tolerating an edit distance proportional to the cleaned
// candidate's length. A candidate that normalizes to nothing accepts only a
// byte-identical user string, so reflexivity holds even for punctuation-only
// answers.
func (c *Checker) IsEquivalent(userText, candidateText string) bool {
	if userText == candidateText && strings.TrimSpace(userText) != "" {
		return true
	}

	user := NormalizeAnswer(userText)
	candidate := NormalizeAnswer(candidateText)
	if candidate == "" {
		return false
	}
	if user == candidate {
		return true
	}

	distance := levenshtein.ComputeDistance(user, candidate)
	limit := int(c.ratio * float64(len([]rune(candidate))))
	return distance <= limit
}

// IsAnswerAccepted reports whether userText matches the canonical answer or
// any of the accepted override phrasings.
func (c *Checker) IsAnswerAccepted(userText, canonicalText string, overrides []string) bool {
	if c.IsEquivalent(userText, canonicalText) {
		return true
	}
	for _, override := range overrides {
		if c.IsEquivalent(userText, override) {
			return true
		}
	}
	return false
}
