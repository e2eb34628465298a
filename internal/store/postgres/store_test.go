package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/phonetic"
	"github.com/MrWong99/werkit/internal/store"
	"github.com/MrWong99/werkit/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if WERKIT_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("WERKIT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WERKIT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS eval_items CASCADE",
		"DROP TABLE IF EXISTS eval_runs CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testReport(t *testing.T) *eval.Report {
	t.Helper()
	ev := eval.New(eval.WithMergeLimit(1), eval.WithPhonetic(phonetic.New()), eval.WithWorkers(2))
	rep, err := ev.Run(context.Background(), []eval.Item{
		{ID: "utt-1", Reference: "I won the race", Hypothesis: "I one the race"},
		{ID: "utt-2", Reference: "the nonsmoker sat down", Hypothesis: "the non smoker sat"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

func TestStore_SaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rep := testReport(t)

	run, err := s.SaveRun(ctx, "baseline", store.Settings{MergeLimit: 1, Phonetic: true}, rep)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if run.ID == 0 || run.CreatedAt.IsZero() {
		t.Errorf("run not assigned ID/created_at: %+v", run)
	}

	got, gotRep, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Label != "baseline" || got.Settings.MergeLimit != 1 || !got.Settings.Phonetic {
		t.Errorf("run = %+v", got)
	}
	if got.Totals != rep.Totals {
		t.Errorf("totals = %+v, want %+v", got.Totals, rep.Totals)
	}
	if len(gotRep.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(gotRep.Items))
	}
	if gotRep.CorpusWER != rep.CorpusWER {
		t.Errorf("corpus WER = %v, want %v", gotRep.CorpusWER, rep.CorpusWER)
	}
	first := gotRep.Items[0]
	if first.ID != "utt-1" || first.PhoneticSubstitutions != 1 || len(first.Phonetic) != 1 {
		t.Errorf("first item = %+v", first)
	}
	if len(first.Alignment) != len(rep.Items[0].Alignment) {
		t.Errorf("alignment length = %d, want %d", len(first.Alignment), len(rep.Items[0].Alignment))
	}
}

func TestStore_ListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rep := testReport(t)

	for _, label := range []string{"a", "b", "c"} {
		if _, err := s.SaveRun(ctx, label, store.Settings{}, rep); err != nil {
			t.Fatalf("SaveRun(%s): %v", label, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].Label != "c" || runs[1].Label != "b" {
		t.Errorf("ListRuns(2) = %+v", runs)
	}
}

func TestStore_GetMissingRun(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.GetRun(context.Background(), 424242); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
