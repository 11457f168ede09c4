package answers

import "testing"

func TestNormalizeCanonicalizesText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercases", input: "PARIS", expected: "paris"},
		{name: "strips-diacritics", input: "Beyoncé Knowles", expected: "beyonce knowles"},
		{name: "strips-punctuation", input: "St. John's, (Newfoundland)!", expected: "st johns newfoundland"},
		{name: "collapses-whitespace", input: "  the   quick\tbrown  fox ", expected: "the quick brown fox"},
		{name: "ampersand-becomes-and", input: "Simon & Garfunkel", expected: "simon and garfunkel"},
		{name: "hyphen-splits-words", input: "Jean-Paul Sartre", expected: "jean paul sartre"},
		{name: "empty", input: "", expected: ""},
		{name: "only-punctuation", input: "?!...", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.expected {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Beyoncé & JAY-Z!",
		"   What   is  Île-de-France? ",
		"the quick brown fox",
		"",
	}
	for _, input := range inputs {
		once := Normalize(input)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q vs %q", input, once, twice)
		}
	}
}

func TestNormalizeAnswerStripsInterrogativeAndArticle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "who-is", input: "Who is Abraham Lincoln?", expected: "abraham lincoln"},
		{name: "what-are", input: "What are the Galápagos Islands", expected: "galapagos islands"},
		{name: "what-was", input: "what was The Alamo", expected: "alamo"},
		{name: "who-were", input: "Who were the Beatles", expected: "beatles"},
		{name: "contraction", input: "What's a quark", expected: "quark"},
		{name: "article-only", input: "The Great Gatsby", expected: "great gatsby"},
		{name: "bare-answer", input: "Abraham Lincoln", expected: "abraham lincoln"},
		{name: "an-article", input: "an apple", expected: "apple"},
		{name: "stacked-prefixes", input: "what is the what is paris", expected: "paris"},
		{name: "article-after-article", input: "The A Priori Argument", expected: "priori argument"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeAnswer(tt.input)
			if got != tt.expected {
				t.Fatalf("NormalizeAnswer(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeAnswerIsIdempotent(t *testing.T) {
	inputs := []string{
		"Who is Abraham Lincoln?",
		"What's the Mississippi",
		"paris",
		// Stacked prefixes must strip to a fixed point in one call.
		"what is the what is paris",
		"Who is The A Priori Argument",
		"the the the",
	}
	for _, input := range inputs {
		once := NormalizeAnswer(input)
		twice := NormalizeAnswer(once)
		if once != twice {
			t.Fatalf("NormalizeAnswer not idempotent for %q: %q vs %q", input, once, twice)
		}
	}
}
