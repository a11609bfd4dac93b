package normalize

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello There", "hello there"},
		{"strips punctuation runs", "wait... what?!", "wait what"},
		{"collapses whitespace", "one   two\t three", "one two three"},
		{"trims", "  padded  ", "padded"},
		{"keeps contractions", "Don't stop", "don't stop"},
		{"drops leading apostrophe", "'quoted'", "quoted"},
		{"empty", "", ""},
		{"only punctuation", "?!,.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Hello, World!",
		"  I -- I think   so?  ",
		"don't... don't stop",
		"",
		"ALL CAPS AND 123 NUMBERS",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestDeduplicateTokens(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "removes doubled word",
			in:   "i need need more time",
			want: "i need more time",
		},
		{
			name: "keeps doubled function word",
			in:   "i know that that was wrong",
			want: "i know that that was wrong",
		},
		{
			name: "keeps doubled article",
			in:   "the the price is high",
			want: "the the price is high",
		},
		{
			name: "removes repeated five gram",
			in:   "can we talk about pricing can we talk about pricing",
			want: "can we talk about pricing",
		},
		{
			name: "removes repeated window mid sentence",
			in:   "sure so what i was going to say what i was going to say is no",
			want: "sure so what i was going to say is no",
		},
		{
			name: "short repeats below window survive",
			in:   "no deal no deal",
			want: "no deal no deal",
		},
		{
			name: "triple window collapses to one",
			in:   "let me check with my team let me check with my team let me check with my team",
			want: "let me check with my team",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeduplicateTokens(tt.in); got != tt.want {
				t.Errorf("DeduplicateTokens(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeduplicateText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "removes stutters keeps surface form",
			in:   "I need need more time, time to think think think",
			want: "I need more time, to think",
		},
		{
			name: "matches across case and punctuation",
			in:   "Fine. fine, let's move on",
			want: "Fine. let's move on",
		},
		{
			name: "keeps doubled function word",
			in:   "I know that that was wrong.",
			want: "I know that that was wrong.",
		},
		{
			name: "removes repeated recognition window",
			in:   "Can we talk about pricing? Can we talk about pricing?",
			want: "Can we talk about pricing?",
		},
		{
			name: "punctuation tokens never match",
			in:   "well - - okay",
			want: "well - - okay",
		},
		{
			name: "clean text unchanged",
			in:   "Let me check the calendar.",
			want: "Let me check the calendar.",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeduplicateText(tt.in); got != tt.want {
				t.Errorf("DeduplicateText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestKeyIdempotent(t *testing.T) {
	inputs := []string{
		"I need need more time!",
		"Can we talk about pricing? Can we talk about pricing?",
		"Fine.",
	}
	for _, in := range inputs {
		once := Key(in)
		twice := Key(once)
		if once != twice {
			t.Errorf("Key not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
