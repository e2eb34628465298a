package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/werkit/internal/eval"
)

func testReport(items ...eval.ItemResult) *eval.Report {
	return eval.NewReport(items)
}

func TestMemStore_SaveAndGet(t *testing.T) {
	t.Parallel()
	s := NewMemStore(0)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	rep := testReport(eval.ItemResult{ID: "a"})
	rep.Items[0].Distance = 1
	rep.Items[0].ReferenceTokens = 4
	rep = eval.NewReport(rep.Items)

	run, err := s.SaveRun(ctx, "baseline", Settings{MergeLimit: 2}, rep)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID != 1 {
		t.Errorf("ID = %d, want 1", run.ID)
	}
	if !run.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", run.CreatedAt, fixed)
	}
	if run.Items != 1 || run.CorpusWER != 0.25 || run.Totals.Distance != 1 {
		t.Errorf("summary = %+v", run)
	}

	got, gotRep, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != run {
		t.Errorf("GetRun run = %+v, want %+v", got, run)
	}
	if gotRep != rep {
		t.Error("GetRun should return the stored report")
	}
}

func TestMemStore_GetMissing(t *testing.T) {
	t.Parallel()
	s := NewMemStore(2)
	if _, _, err := s.GetRun(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListNewestFirstAndEvicts(t *testing.T) {
	t.Parallel()
	s := NewMemStore(3)
	ctx := context.Background()

	for _, label := range []string{"r1", "r2", "r3", "r4", "r5"} {
		if _, err := s.SaveRun(ctx, label, Settings{}, testReport()); err != nil {
			t.Fatalf("SaveRun(%s): %v", label, err)
		}
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	want := []string{"r5", "r4", "r3"}
	if len(runs) != len(want) {
		t.Fatalf("ListRuns returned %d runs, want %d", len(runs), len(want))
	}
	for i, label := range want {
		if runs[i].Label != label {
			t.Errorf("runs[%d].Label = %q, want %q", i, runs[i].Label, label)
		}
	}

	limited, _ := s.ListRuns(ctx, 2)
	if len(limited) != 2 || limited[0].Label != "r5" {
		t.Errorf("ListRuns(2) = %+v", limited)
	}

	// Evicted runs are gone; IDs keep counting.
	if _, _, err := s.GetRun(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("run 1 should be evicted, got %v", err)
	}
	if run, _, err := s.GetRun(ctx, 5); err != nil || run.Label != "r5" {
		t.Errorf("GetRun(5) = %+v, %v", run, err)
	}
}
