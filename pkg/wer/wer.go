// Package wer computes token-level word error rates between two versions of
// a text and reconstructs the alignment between them.
//
// Besides the classical edit operations (substitution, deletion, insertion)
// the distance recognises concatenation matches: a run of adjacent tokens on
// one side whose concatenation is byte-identical to a run on the other side
// collapses into a single matched unit. "error rate" and "errorrate" match
// with one merge; "this isa text" and "thisis atext" match with three.
//
// The number of merges a single match may use is bounded by
// [WithMergeLimit]. With a limit of 0 the distance is the classical token
// Levenshtein distance.
//
// Token comparison is case-insensitive unless [WithCaseSensitive] is set;
// aligned output always keeps the original spelling.
//
// All functions are pure and safe for concurrent use.
package wer

// MaxMergeLimit caps the merge limit accepted by configuration surfaces.
// The algorithm itself works with any non-negative limit.
const MaxMergeLimit = 64

// Option configures a single computation.
type Option func(*settings)

type settings struct {
	mergeLimit    int
	caseSensitive bool
}

// WithMergeLimit sets how many leftward token merges a concatenation match
// may perform. Negative values are treated as 0. Default: 0.
func WithMergeLimit(n int) Option {
	return func(s *settings) {
		s.mergeLimit = max(n, 0)
	}
}

// WithCaseSensitive switches token comparison to exact byte equality.
// Default: false (tokens are compared after Unicode case folding).
func WithCaseSensitive(on bool) Option {
	return func(s *settings) {
		s.caseSensitive = on
	}
}

func newSettings(opts []Option) settings {
	var s settings
	for _, o := range opts {
		o(&s)
	}
	return s
}

// BuildTable tokenises left and right and computes the full distance table.
// Rows correspond to left tokens, columns to right tokens.
func BuildTable(left, right Input, opts ...Option) *Table {
	s := newSettings(opts)
	return newTable(
		newSequence(left, s.caseSensitive),
		newSequence(right, s.caseSensitive),
		s.mergeLimit,
	)
}

// EditDistance returns the minimum number of token edits needed to turn
// left into right, counting concatenation matches as free.
func EditDistance(left, right Input, opts ...Option) int {
	return BuildTable(left, right, opts...).Distance()
}

// WordErrorRate returns the edit distance between incoming and expected
// divided by the larger of the two token counts. It returns 0 when both
// inputs are empty.
func WordErrorRate(incoming, expected Input, opts ...Option) float64 {
	return BuildTable(incoming, expected, opts...).Rate()
}

// Align returns the token alignment between left and right in left-to-right
// order. Every token of both inputs appears in exactly one pair.
func Align(left, right Input, opts ...Option) []Pair {
	return BuildTable(left, right, opts...).Align()
}

// rate normalises distance by the longer sequence length.
func rate(distance, nl, nr int) float64 {
	d := max(nl, nr)
	if d == 0 {
		return 0
	}
	return float64(distance) / float64(d)
}
