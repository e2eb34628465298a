package wer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Input is the text on one side of a comparison: either a [Text] that is
// split on whitespace or a pre-tokenised [Tokens] slice.
type Input interface {
	tokens() []string
}

// Text is raw text. Tokens are maximal runs of non-whitespace characters.
type Text string

func (t Text) tokens() []string {
	return strings.Fields(string(t))
}

// Tokens is an already tokenised sequence. It is used as given; empty
// strings are kept as tokens.
type Tokens []string

func (t Tokens) tokens() []string {
	return t
}

// Cells returns the number of cells [BuildTable] allocates for left and
// right, (|left|+1)·(|right|+1). Memory grows with this product, so callers
// accepting untrusted input should bound it before building a table.
func Cells(left, right Input) int64 {
	return int64(countTokens(left)+1) * int64(countTokens(right)+1)
}

// countTokens counts the tokens of in without materialising them.
func countTokens(in Input) int {
	switch in := in.(type) {
	case nil:
		return 0
	case Text:
		n, inToken := 0, false
		for _, r := range string(in) {
			space := unicode.IsSpace(r)
			if !space && !inToken {
				n++
			}
			inToken = !space
		}
		return n
	default:
		return len(in.tokens())
	}
}

// sequence is one tokenised side. raw is used for output, keys for
// comparison.
type sequence struct {
	raw  []string
	keys []string
}

func newSequence(in Input, caseSensitive bool) sequence {
	var raw []string
	if in != nil {
		raw = in.tokens()
	}
	if caseSensitive {
		return sequence{raw: raw, keys: raw}
	}

	// A Caser is not safe for concurrent use.
	folder := cases.Fold()
	keys := make([]string, len(raw))
	for i, tok := range raw {
		keys[i] = folder.String(tok)
	}
	return sequence{raw: raw, keys: keys}
}

func (s sequence) len() int { return len(s.raw) }

// join returns the raw tokens in [from, to) separated by single spaces.
func (s sequence) join(from, to int) string {
	return strings.Join(s.raw[from:to], " ")
}
