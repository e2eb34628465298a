package wer

// Result is a full comparison of a hypothesis against a reference.
//
// Distance and WER come from the distance table. The operation counts are
// derived from the reconstructed alignment; because concatenation matches
// are taken greedily during backtracking, their sum may exceed Distance when
// a merge limit is set.
type Result struct {
	Distance int     `json:"distance"`
	WER      float64 `json:"wer"`

	ReferenceTokens  int `json:"reference_tokens"`
	HypothesisTokens int `json:"hypothesis_tokens"`

	Matches       int `json:"matches"`
	Substitutions int `json:"substitutions"`
	Deletions     int `json:"deletions"`
	Insertions    int `json:"insertions"`
	Merges        int `json:"merges"`

	Alignment []Pair `json:"alignment"`
}

// Errors returns the number of substitutions, deletions and insertions in
// the alignment.
func (r Result) Errors() int {
	return r.Substitutions + r.Deletions + r.Insertions
}

// Evaluate compares hypothesis against reference. Reference tokens are the
// left side of the alignment, so a [OpDelete] pair is a reference token the
// hypothesis missed.
func Evaluate(reference, hypothesis Input, opts ...Option) Result {
	t := BuildTable(reference, hypothesis, opts...)
	res := Result{
		Distance:         t.Distance(),
		WER:              t.Rate(),
		ReferenceTokens:  t.Rows(),
		HypothesisTokens: t.Cols(),
		Alignment:        t.Align(),
	}
	for _, p := range res.Alignment {
		switch p.Op {
		case OpMatch:
			res.Matches++
		case OpSubstitute:
			res.Substitutions++
		case OpDelete:
			res.Deletions++
		case OpInsert:
			res.Insertions++
		case OpMerge:
			res.Merges++
		}
	}
	return res
}
