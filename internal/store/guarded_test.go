package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/resilience"
)

var errDown = errors.New("database down")

// failingStore fails every call with err and counts the calls.
type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) SaveRun(context.Context, string, Settings, *eval.Report) (Run, error) {
	f.calls++
	return Run{}, f.err
}

func (f *failingStore) ListRuns(context.Context, int) ([]Run, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) GetRun(context.Context, int64) (Run, *eval.Report, error) {
	f.calls++
	return Run{}, nil, f.err
}

func TestGuard_OpensOnBackendFailures(t *testing.T) {
	t.Parallel()
	backend := &failingStore{err: errDown}
	g := Guard(backend, resilience.Config{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for range 2 {
		if _, err := g.ListRuns(ctx, 0); !errors.Is(err, errDown) {
			t.Fatalf("ListRuns = %v, want errDown", err)
		}
	}
	if g.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open", g.State())
	}

	if _, err := g.SaveRun(ctx, "", Settings{}, eval.NewReport(nil)); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("SaveRun = %v, want ErrCircuitOpen", err)
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2", backend.calls)
	}
}

func TestGuard_NotFoundKeepsClosed(t *testing.T) {
	t.Parallel()
	g := Guard(NewMemStore(0), resilience.Config{MaxFailures: 1})
	ctx := context.Background()

	for range 3 {
		if _, _, err := g.GetRun(ctx, 99); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetRun = %v, want ErrNotFound", err)
		}
	}
	if g.State() != resilience.StateClosed {
		t.Errorf("state = %v, want closed", g.State())
	}

	run, err := g.SaveRun(ctx, "x", Settings{}, eval.NewReport(nil))
	if err != nil || run.ID != 1 {
		t.Errorf("SaveRun = %+v, %v", run, err)
	}
}
