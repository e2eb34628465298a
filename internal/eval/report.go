package eval

import (
	"cmp"
	"slices"
)

// Totals sums the per-item counts of a [Report].
type Totals struct {
	Distance              int `json:"distance"`
	ReferenceTokens       int `json:"reference_tokens"`
	HypothesisTokens      int `json:"hypothesis_tokens"`
	Matches               int `json:"matches"`
	Substitutions         int `json:"substitutions"`
	Deletions             int `json:"deletions"`
	Insertions            int `json:"insertions"`
	Merges                int `json:"merges"`
	PhoneticSubstitutions int `json:"phonetic_substitutions"`
}

// Report aggregates the results of a corpus run.
type Report struct {
	Items  []ItemResult `json:"items"`
	Totals Totals       `json:"totals"`

	// CorpusWER is the summed distance divided by the summed per-item
	// normaliser max(reference tokens, hypothesis tokens). Long items weigh
	// more than short ones.
	CorpusWER float64 `json:"corpus_wer"`

	// MeanWER is the unweighted mean of the per-item rates.
	MeanWER float64 `json:"mean_wer"`
}

// Tally accumulates item results one at a time. The zero value is ready to
// use.
type Tally struct {
	Totals Totals
	Count  int

	denom   int
	rateSum float64
}

// Add folds one item result into the tally.
func (t *Tally) Add(it ItemResult) {
	t.Count++
	t.Totals.Distance += it.Distance
	t.Totals.ReferenceTokens += it.ReferenceTokens
	t.Totals.HypothesisTokens += it.HypothesisTokens
	t.Totals.Matches += it.Matches
	t.Totals.Substitutions += it.Substitutions
	t.Totals.Deletions += it.Deletions
	t.Totals.Insertions += it.Insertions
	t.Totals.Merges += it.Merges
	t.Totals.PhoneticSubstitutions += it.PhoneticSubstitutions

	t.denom += max(it.ReferenceTokens, it.HypothesisTokens)
	t.rateSum += it.WER
}

// CorpusWER returns the summed distance over the summed normalisers, or 0
// when nothing was added.
func (t *Tally) CorpusWER() float64 {
	if t.denom == 0 {
		return 0
	}
	return float64(t.Totals.Distance) / float64(t.denom)
}

// MeanWER returns the unweighted mean of the per-item rates.
func (t *Tally) MeanWER() float64 {
	if t.Count == 0 {
		return 0
	}
	return t.rateSum / float64(t.Count)
}

// NewReport aggregates results. Both rates are 0 for an empty corpus.
func NewReport(results []ItemResult) *Report {
	r := &Report{Items: results}
	if r.Items == nil {
		r.Items = []ItemResult{}
	}

	var t Tally
	for _, it := range results {
		t.Add(it)
	}
	r.Totals = t.Totals
	r.CorpusWER = t.CorpusWER()
	r.MeanWER = t.MeanWER()
	return r
}

// Worst returns up to n items ordered by descending WER. Ties keep their
// corpus order.
func (r *Report) Worst(n int) []ItemResult {
	sorted := slices.Clone(r.Items)
	slices.SortStableFunc(sorted, func(a, b ItemResult) int {
		return cmp.Compare(b.WER, a.WER)
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
