package store

import "github.com/MrWong99/werkit/pkg/wer"

// AlignedPair is the stored form of a [wer.Pair]. Unlike the pair's own
// JSON form it keeps the operation. The absent side of an insertion or
// deletion is null.
type AlignedPair struct {
	Left  *string `json:"l"`
	Right *string `json:"r"`
	Op    wer.Op  `json:"op"`
}

// EncodePairs converts an alignment to its stored form.
func EncodePairs(pairs []wer.Pair) []AlignedPair {
	out := make([]AlignedPair, len(pairs))
	for i, p := range pairs {
		ap := AlignedPair{Op: p.Op}
		if p.HasLeft() {
			ap.Left = &p.Left
		}
		if p.HasRight() {
			ap.Right = &p.Right
		}
		out[i] = ap
	}
	return out
}

// DecodePairs converts a stored alignment back to pairs.
func DecodePairs(stored []AlignedPair) []wer.Pair {
	out := make([]wer.Pair, len(stored))
	for i, ap := range stored {
		p := wer.Pair{Op: ap.Op}
		if ap.Left != nil {
			p.Left = *ap.Left
		}
		if ap.Right != nil {
			p.Right = *ap.Right
		}
		out[i] = p
	}
	return out
}
