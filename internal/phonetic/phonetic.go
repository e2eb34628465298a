// Package phonetic flags substitution errors whose two sides sound alike,
// such as "one" transcribed as "won" or "two" as "too". These are typical
// speech recognition confusions and are worth reporting separately from
// unrelated substitutions.
//
// The check proceeds in two stages:
//
//  1. Phonetic overlap: Double Metaphone codes are computed for both sides.
//     Multi-word spans are encoded with their spaces removed, so "ice cream"
//     can match "i scream". If any code is shared the pair sounds alike, and
//     its score is the Jaro-Winkler similarity of the lower-cased strings.
//
//  2. Fuzzy fallback: when no code is shared, the pair still counts when its
//     best Jaro-Winkler similarity reaches the fuzzy threshold (default
//     0.85).
//
// Matching never changes a distance; it only annotates alignment pairs.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultFuzzyThreshold = 0.85

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for pairs without a
// shared phonetic code. Values outside (0, 1] are ignored. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 && threshold <= 1 {
			m.fuzzyThreshold = threshold
		}
	}
}

// Matcher decides whether two token spans sound alike. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	fuzzyThreshold float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{fuzzyThreshold: defaultFuzzyThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// FuzzyThreshold returns the configured fuzzy fallback threshold.
func (m *Matcher) FuzzyThreshold() float64 { return m.fuzzyThreshold }

// SoundsAlike reports whether a and b are likely phonetic confusions of each
// other. score is the best Jaro-Winkler similarity found; it is 0 when either
// side is blank.
func (m *Matcher) SoundsAlike(a, b string) (score float64, ok bool) {
	aTokens := strings.Fields(strings.ToLower(a))
	bTokens := strings.Fields(strings.ToLower(b))
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0, false
	}

	aFull, bFull := strings.Join(aTokens, " "), strings.Join(bTokens, " ")
	score = bestJWScore(aTokens, bTokens, aFull, bFull)

	if codesOverlap(codesFor(aTokens), codesFor(bTokens)) {
		return score, true
	}
	return score, score >= m.fuzzyThreshold
}

// codesFor returns the union of all Double Metaphone codes for the tokens
// and, for multi-token spans, for their concatenation. Empty codes (produced
// for words without consonant sounds) are excluded.
func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2+2)
	add := func(word string) {
		p, s := matchr.DoubleMetaphone(word)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	if len(tokens) == 1 {
		add(tokens[0])
		return codes
	}
	add(strings.Join(tokens, ""))
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the two
// spans using the full strings and, for multi-token spans, the space-stripped
// strings.
func bestJWScore(aTokens, bTokens []string, aFull, bFull string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)

	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}
