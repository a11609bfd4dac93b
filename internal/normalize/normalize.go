// Package normalize provides the pure text-processing pass applied to every
// transcript fragment before deduplication.
//
// Streaming transcribers re-emit overlapping recognition windows, stutter on
// word boundaries, and disagree about punctuation between partial revisions.
// [Normalize] reduces a fragment to a canonical lowercase form and
// [DeduplicateTokens] strips the two repetition artifacts we see in practice:
// an immediately doubled word ("I I need more time") and a whole phrase
// re-emitted directly after itself when the recogniser's window slides.
// [DeduplicateText] performs the same repetition removal on display text,
// keeping the speaker's casing and punctuation.
//
// All functions are pure, deterministic, and idempotent:
// Normalize(Normalize(s)) == Normalize(s) for every s.
package normalize

import (
	"strings"
	"unicode"
)

// ngram window bounds for repeated-phrase removal. Streaming recognisers
// typically overlap by 5–8 tokens when they re-emit a window.
const (
	minNGram = 5
	maxNGram = 8
)

// functionWords are short words that legitimately repeat in natural speech
// ("that that", "had had", "very very good"). A doubled occurrence of one of
// these is kept.
var functionWords = map[string]struct{}{
	// articles
	"a": {}, "an": {}, "the": {},
	// conjunctions
	"and": {}, "or": {}, "but": {}, "so": {}, "nor": {}, "yet": {}, "for": {},
	// short pronouns
	"i": {}, "you": {}, "we": {}, "he": {}, "she": {}, "it": {},
	"me": {}, "us": {}, "they": {},
}

// Normalize lowercases s, replaces punctuation runs with single spaces,
// collapses whitespace, and trims. Apostrophes between letters are kept so
// contractions survive ("don't" does not become "don t").
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(strings.ToLower(s))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '\'' && i > 0 && i+1 < len(runes) &&
			unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// DeduplicateTokens removes an immediately repeated word (unless it is an
// allow-listed function word) and removes word n-grams of length 5–8 that
// reappear directly after themselves. The n-gram pass runs to a fixpoint so
// a window emitted three times collapses to one.
//
// Input is expected to already be normalised; the output is a single-space
// joined token string either way.
func DeduplicateTokens(s string) string {
	tokens := strings.Fields(s)
	return strings.Join(dedupe(tokens, tokens), " ")
}

// DeduplicateText applies the same repetition removal as
// [DeduplicateTokens] to display text: repeats are detected on the
// normalised form of each token, but surviving tokens keep the speaker's
// original casing and punctuation. This is the form committed to the
// transcript.
func DeduplicateText(s string) string {
	surface := strings.Fields(s)
	keys := make([]string, len(surface))
	for i, t := range surface {
		keys[i] = Normalize(t)
	}
	return strings.Join(dedupe(surface, keys), " ")
}

// Key produces the canonical comparison key for a fragment: the normalised,
// token-deduplicated form. Two fragments with equal keys are considered the
// same utterance by the deduplication ledger.
func Key(s string) string {
	return DeduplicateTokens(Normalize(s))
}

// dedupe runs the doubled-word and repeated-n-gram passes over surface,
// comparing tokens through the parallel keys slice. Passing the same slice
// twice compares tokens literally.
func dedupe(surface, keys []string) []string {
	surface, keys = dropDoubledWords(surface, keys)

	for {
		next, nextKeys, changed := dropRepeatedNGrams(surface, keys)
		if !changed {
			break
		}
		surface, keys = next, nextKeys
	}

	return surface
}

// dropDoubledWords removes a token whose key equals its immediate
// predecessor's, unless it is a function word. Tokens with an empty key
// (pure punctuation) never match anything.
func dropDoubledWords(surface, keys []string) ([]string, []string) {
	outS := surface[:0:0]
	outK := keys[:0:0]
	for i := range surface {
		if i > 0 && keys[i] != "" && keys[i] == keys[i-1] {
			if _, allowed := functionWords[keys[i]]; !allowed {
				continue
			}
		}
		outS = append(outS, surface[i])
		outK = append(outK, keys[i])
	}
	return outS, outK
}

// dropRepeatedNGrams removes the second occurrence of any n-gram (longest
// window first) that directly follows itself, matching by key. Returns the
// possibly reduced slices and whether anything was removed.
func dropRepeatedNGrams(surface, keys []string) ([]string, []string, bool) {
	for n := maxNGram; n >= minNGram; n-- {
		for i := 0; i+2*n <= len(keys); i++ {
			if equalWindow(keys[i:i+n], keys[i+n:i+2*n]) {
				outS := make([]string, 0, len(surface)-n)
				outS = append(outS, surface[:i+n]...)
				outS = append(outS, surface[i+2*n:]...)
				outK := make([]string, 0, len(keys)-n)
				outK = append(outK, keys[:i+n]...)
				outK = append(outK, keys[i+2*n:]...)
				return outS, outK, true
			}
		}
	}
	return surface, keys, false
}

// equalWindow reports whether two equal-length token windows match exactly.
func equalWindow(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
