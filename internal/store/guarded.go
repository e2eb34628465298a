package store

import (
	"context"
	"errors"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/resilience"
)

// Compile-time interface check.
var _ RunStore = (*Guarded)(nil)

// Guarded wraps a [RunStore] with a circuit breaker. While the backend keeps
// failing, calls return [resilience.ErrCircuitOpen] at once instead of
// waiting on a dead database. [ErrNotFound] does not count as a failure.
type Guarded struct {
	next RunStore
	cb   *resilience.Breaker
}

// Guard wraps next with a breaker built from cfg.
func Guard(next RunStore, cfg resilience.Config) *Guarded {
	if cfg.Name == "" {
		cfg.Name = "run-store"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
		}
	}
	return &Guarded{next: next, cb: resilience.New(cfg)}
}

// State returns the breaker state.
func (g *Guarded) State() resilience.State { return g.cb.State() }

// SaveRun implements [RunStore].
func (g *Guarded) SaveRun(ctx context.Context, label string, settings Settings, report *eval.Report) (Run, error) {
	var run Run
	err := g.cb.Do(ctx, func(ctx context.Context) error {
		var err error
		run, err = g.next.SaveRun(ctx, label, settings, report)
		return err
	})
	return run, err
}

// ListRuns implements [RunStore].
func (g *Guarded) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := g.cb.Do(ctx, func(ctx context.Context) error {
		var err error
		runs, err = g.next.ListRuns(ctx, limit)
		return err
	})
	return runs, err
}

// GetRun implements [RunStore].
func (g *Guarded) GetRun(ctx context.Context, id int64) (Run, *eval.Report, error) {
	var (
		run    Run
		report *eval.Report
	)
	err := g.cb.Do(ctx, func(ctx context.Context) error {
		var err error
		run, report, err = g.next.GetRun(ctx, id)
		return err
	})
	return run, report, err
}
