// Package eval scores transcripts against references, one item at a time or
// as a corpus. Corpus runs score items concurrently with a bounded number of
// workers and aggregate the results into a [Report].
package eval

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/werkit/internal/observe"
	"github.com/MrWong99/werkit/internal/phonetic"
	"github.com/MrWong99/werkit/pkg/wer"
)

// Option is a functional option for configuring an [Evaluator].
type Option func(*Evaluator)

// WithMergeLimit sets the number of merges a concatenation match may use.
// Negative values are treated as 0.
func WithMergeLimit(n int) Option {
	return func(e *Evaluator) {
		e.mergeLimit = max(n, 0)
	}
}

// WithCaseSensitive disables case folding.
func WithCaseSensitive(on bool) Option {
	return func(e *Evaluator) {
		e.caseSensitive = on
	}
}

// WithWorkers bounds how many items [Evaluator.Run] scores concurrently.
// n <= 0 means one worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithPhonetic enables phonetic annotation of substitutions. A nil matcher
// disables it.
func WithPhonetic(m *phonetic.Matcher) Option {
	return func(e *Evaluator) {
		e.phonetic = m
	}
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Evaluator) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Evaluator scores items with a fixed set of comparison settings. It is
// immutable after construction and safe for concurrent use.
type Evaluator struct {
	mergeLimit    int
	caseSensitive bool
	workers       int
	phonetic      *phonetic.Matcher
	metrics       *observe.Metrics
}

// New returns an [Evaluator] configured with opts.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		workers: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Workers returns the concurrency limit used by [Evaluator.Run].
func (e *Evaluator) Workers() int { return e.workers }

// PhoneticMatch is a substitution whose two sides sound alike.
type PhoneticMatch struct {
	// Index is the position of the pair in the alignment.
	Index      int     `json:"index"`
	Reference  string  `json:"reference"`
	Hypothesis string  `json:"hypothesis"`
	Score      float64 `json:"score"`
}

// ItemResult is the outcome of scoring one [Item].
type ItemResult struct {
	ID string `json:"id"`
	wer.Result

	// PhoneticSubstitutions counts substitutions that sound alike. It is
	// always 0 when phonetic annotation is disabled.
	PhoneticSubstitutions int             `json:"phonetic_substitutions"`
	Phonetic              []PhoneticMatch `json:"phonetic,omitempty"`
}

// Evaluate scores a single item. ctx carries the trace; scoring itself does
// not block.
func (e *Evaluator) Evaluate(ctx context.Context, item Item) ItemResult {
	ctx, span := observe.StartSpan(ctx, "eval.Evaluate",
		trace.WithAttributes(attribute.String("item.id", item.ID)),
	)
	defer span.End()

	start := time.Now()
	res := wer.Evaluate(wer.Text(item.Reference), wer.Text(item.Hypothesis),
		wer.WithMergeLimit(e.mergeLimit),
		wer.WithCaseSensitive(e.caseSensitive),
	)
	out := ItemResult{ID: item.ID, Result: res}

	if e.phonetic != nil {
		for i, p := range res.Alignment {
			if p.Op != wer.OpSubstitute {
				continue
			}
			if score, ok := e.phonetic.SoundsAlike(p.Left, p.Right); ok {
				out.Phonetic = append(out.Phonetic, PhoneticMatch{
					Index:      i,
					Reference:  p.Left,
					Hypothesis: p.Right,
					Score:      score,
				})
			}
		}
		out.PhoneticSubstitutions = len(out.Phonetic)
	}

	e.metrics.RecordScore(ctx, observe.OpEvaluate, "ok", time.Since(start))
	e.metrics.RecordTokens(ctx, res.ReferenceTokens, res.HypothesisTokens)
	if res.Merges > 0 {
		e.metrics.Merges.Add(ctx, int64(res.Merges))
	}
	if out.PhoneticSubstitutions > 0 {
		e.metrics.PhoneticSubstitutions.Add(ctx, int64(out.PhoneticSubstitutions))
	}

	span.SetAttributes(
		attribute.Int("wer.distance", res.Distance),
		attribute.Float64("wer.rate", res.WER),
	)
	return out
}

// Run scores items concurrently and aggregates them into a [Report]. Items
// without an ID are numbered by position; duplicate IDs are rejected with
// [ErrDuplicateID]. Results keep the order of items. When ctx is cancelled
// before every item is scored, Run returns the context error.
func (e *Evaluator) Run(ctx context.Context, items []Item) (_ *Report, err error) {
	items, err = normalizeItems(items)
	if err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "eval.Run",
		trace.WithAttributes(
			attribute.Int("batch.items", len(items)),
			attribute.Int("batch.workers", e.workers),
		),
	)
	defer func() { observe.EndSpan(span, err) }()

	e.metrics.ActiveBatches.Add(ctx, 1)
	defer e.metrics.ActiveBatches.Add(ctx, -1)

	start := time.Now()
	results := make([]ItemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				e.metrics.RecordBatchItem(ctx, "cancelled")
				return err
			}
			results[i] = e.Evaluate(gctx, item)
			e.metrics.RecordBatchItem(ctx, "ok")
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return nil, fmt.Errorf("eval: run: %w", werr)
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, fmt.Errorf("eval: run: %w", cerr)
	}

	report := NewReport(results)
	observe.Logger(ctx).Info("batch evaluated",
		"items", len(items),
		"workers", e.workers,
		"corpus_wer", report.CorpusWER,
		"duration", time.Since(start),
	)
	return report, nil
}
