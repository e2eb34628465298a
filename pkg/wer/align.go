package wer

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Op is the edit operation represented by an alignment [Pair].
type Op uint8

const (
	// OpMatch pairs two equal tokens.
	OpMatch Op = iota

	// OpSubstitute pairs two different tokens.
	OpSubstitute

	// OpDelete is a left token with no right counterpart.
	OpDelete

	// OpInsert is a right token with no left counterpart.
	OpInsert

	// OpMerge pairs two token runs whose concatenations are equal. At least
	// one side spans more than one token.
	OpMerge
)

var opNames = [...]string{
	OpMatch:      "match",
	OpSubstitute: "substitute",
	OpDelete:     "delete",
	OpInsert:     "insert",
	OpMerge:      "merge",
}

// String returns the lower-case operation name.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// MarshalText implements [encoding.TextMarshaler].
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]. It accepts the names
// returned by [Op.String].
func (o *Op) UnmarshalText(b []byte) error {
	for i, name := range opNames {
		if string(b) == name {
			*o = Op(i)
			return nil
		}
	}
	return fmt.Errorf("wer: unknown op %q", b)
}

// Pair is one entry of an alignment. Left and Right hold a single token or,
// for [OpMerge], the space-joined tokens of a run. The absent side of an
// [OpDelete] or [OpInsert] is empty; use HasLeft and HasRight to tell an
// absent side from an empty token.
type Pair struct {
	Left  string
	Right string
	Op    Op
}

// HasLeft reports whether the pair has a left side.
func (p Pair) HasLeft() bool { return p.Op != OpInsert }

// HasRight reports whether the pair has a right side.
func (p Pair) HasRight() bool { return p.Op != OpDelete }

// String renders the pair as (left, right) with <nil> for an absent side.
func (p Pair) String() string {
	l, r := "<nil>", "<nil>"
	if p.HasLeft() {
		l = fmt.Sprintf("%q", p.Left)
	}
	if p.HasRight() {
		r = fmt.Sprintf("%q", p.Right)
	}
	return "(" + l + ", " + r + ")"
}

// MarshalJSON encodes the pair as a two-element array, using null for an
// absent side.
func (p Pair) MarshalJSON() ([]byte, error) {
	var l, r *string
	if p.HasLeft() {
		l = &p.Left
	}
	if p.HasRight() {
		r = &p.Right
	}
	return json.Marshal([2]*string{l, r})
}

// Align backtracks the table from its last cell to the origin and returns
// the aligned pairs in left-to-right order.
//
// Concatenation matches are preferred; otherwise substitution, deletion and
// insertion are tried in that order.
func (t *Table) Align() []Pair {
	il, ir := t.Rows(), t.Cols()
	pairs := make([]Pair, 0, max(il, ir))

	for il > 0 && ir > 0 {
		if jl, jr := concatMatch(t.left.keys, t.right.keys, il, ir, t.limit); jl < il {
			op := OpMerge
			if jl == il-1 && jr == ir-1 {
				op = OpMatch
			}
			pairs = append(pairs, Pair{
				Left:  t.left.join(jl, il),
				Right: t.right.join(jr, ir),
				Op:    op,
			})
			il, ir = jl, jr
			continue
		}

		cur := t.dp[il][ir]
		switch {
		case t.dp[il-1][ir-1]+1 == cur:
			il--
			ir--
			pairs = append(pairs, Pair{Left: t.left.raw[il], Right: t.right.raw[ir], Op: OpSubstitute})
		case t.dp[il-1][ir]+1 == cur:
			il--
			pairs = append(pairs, Pair{Left: t.left.raw[il], Op: OpDelete})
		default:
			ir--
			pairs = append(pairs, Pair{Right: t.right.raw[ir], Op: OpInsert})
		}
	}
	for ; ir > 0; ir-- {
		pairs = append(pairs, Pair{Right: t.right.raw[ir-1], Op: OpInsert})
	}
	for ; il > 0; il-- {
		pairs = append(pairs, Pair{Left: t.left.raw[il-1], Op: OpDelete})
	}

	slices.Reverse(pairs)
	return pairs
}
