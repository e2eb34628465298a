package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/store"
	"github.com/MrWong99/werkit/pkg/wer"
)

// Compile-time interface check.
var _ store.RunStore = (*Store)(nil)

// Store is a [store.RunStore] backed by a [pgxpool.Pool]. All operations are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the PostgreSQL database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping checks that the database is reachable. It is used as a readiness
// check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func encodeAlignment(pairs []wer.Pair) ([]byte, error) {
	return json.Marshal(store.EncodePairs(pairs))
}

func decodeAlignment(data []byte) ([]wer.Pair, error) {
	var stored []store.AlignedPair
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return store.DecodePairs(stored), nil
}

// SaveRun implements [store.RunStore]. The run and all of its items are
// written in a single transaction.
func (s *Store) SaveRun(ctx context.Context, label string, settings store.Settings, report *eval.Report) (store.Run, error) {
	run := store.Summarize(label, settings, report)

	totals, err := json.Marshal(run.Totals)
	if err != nil {
		return store.Run{}, fmt.Errorf("postgres store: encode totals: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Run{}, fmt.Errorf("postgres store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const qRun = `
		INSERT INTO eval_runs
		    (label, merge_limit, case_sensitive, phonetic, items, corpus_wer, mean_wer, totals)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	if err := tx.QueryRow(ctx, qRun,
		run.Label,
		run.Settings.MergeLimit,
		run.Settings.CaseSensitive,
		run.Settings.Phonetic,
		run.Items,
		run.CorpusWER,
		run.MeanWER,
		totals,
	).Scan(&run.ID, &run.CreatedAt); err != nil {
		return store.Run{}, fmt.Errorf("postgres store: insert run: %w", err)
	}

	const qItem = `
		INSERT INTO eval_items
		    (run_id, position, item_id, distance, wer, reference_tokens, hypothesis_tokens,
		     matches, substitutions, deletions, insertions, merges, phonetic_substitutions,
		     alignment, phonetic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	batch := &pgx.Batch{}
	for i, it := range report.Items {
		alignment, err := encodeAlignment(it.Alignment)
		if err != nil {
			return store.Run{}, fmt.Errorf("postgres store: encode alignment of %q: %w", it.ID, err)
		}
		phonetic := it.Phonetic
		if phonetic == nil {
			phonetic = []eval.PhoneticMatch{}
		}
		phoneticJSON, err := json.Marshal(phonetic)
		if err != nil {
			return store.Run{}, fmt.Errorf("postgres store: encode phonetic of %q: %w", it.ID, err)
		}
		batch.Queue(qItem,
			run.ID, i, it.ID, it.Distance, it.WER, it.ReferenceTokens, it.HypothesisTokens,
			it.Matches, it.Substitutions, it.Deletions, it.Insertions, it.Merges,
			it.PhoneticSubstitutions, alignment, phoneticJSON,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return store.Run{}, fmt.Errorf("postgres store: insert items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Run{}, fmt.Errorf("postgres store: commit: %w", err)
	}
	return run, nil
}

const runColumns = `id, label, created_at, merge_limit, case_sensitive, phonetic, items, corpus_wer, mean_wer, totals`

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		r      store.Run
		totals []byte
	)
	if err := row.Scan(
		&r.ID,
		&r.Label,
		&r.CreatedAt,
		&r.Settings.MergeLimit,
		&r.Settings.CaseSensitive,
		&r.Settings.Phonetic,
		&r.Items,
		&r.CorpusWER,
		&r.MeanWER,
		&totals,
	); err != nil {
		return store.Run{}, err
	}
	if err := json.Unmarshal(totals, &r.Totals); err != nil {
		return store.Run{}, fmt.Errorf("decode totals: %w", err)
	}
	return r, nil
}

// ListRuns implements [store.RunStore].
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	q := `SELECT ` + runColumns + ` FROM eval_runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Run, error) {
		return scanRun(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan runs: %w", err)
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return runs, nil
}

// GetRun implements [store.RunStore].
func (s *Store) GetRun(ctx context.Context, id int64) (store.Run, *eval.Report, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM eval_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, nil, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, nil, fmt.Errorf("postgres store: get run %d: %w", id, err)
	}

	const qItems = `
		SELECT item_id, distance, wer, reference_tokens, hypothesis_tokens,
		       matches, substitutions, deletions, insertions, merges,
		       phonetic_substitutions, alignment, phonetic
		FROM   eval_items
		WHERE  run_id = $1
		ORDER  BY position`

	rows, err := s.pool.Query(ctx, qItems, id)
	if err != nil {
		return store.Run{}, nil, fmt.Errorf("postgres store: get items of run %d: %w", id, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (eval.ItemResult, error) {
		var (
			it                  eval.ItemResult
			alignment, phonetic []byte
		)
		if err := row.Scan(
			&it.ID,
			&it.Distance,
			&it.WER,
			&it.ReferenceTokens,
			&it.HypothesisTokens,
			&it.Matches,
			&it.Substitutions,
			&it.Deletions,
			&it.Insertions,
			&it.Merges,
			&it.PhoneticSubstitutions,
			&alignment,
			&phonetic,
		); err != nil {
			return eval.ItemResult{}, err
		}
		var err error
		if it.Alignment, err = decodeAlignment(alignment); err != nil {
			return eval.ItemResult{}, fmt.Errorf("decode alignment: %w", err)
		}
		if err := json.Unmarshal(phonetic, &it.Phonetic); err != nil {
			return eval.ItemResult{}, fmt.Errorf("decode phonetic: %w", err)
		}
		if len(it.Phonetic) == 0 {
			it.Phonetic = nil
		}
		return it, nil
	})
	if err != nil {
		return store.Run{}, nil, fmt.Errorf("postgres store: scan items of run %d: %w", id, err)
	}

	return run, eval.NewReport(items), nil
}
