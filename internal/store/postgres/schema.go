// Package postgres provides a PostgreSQL-backed [store.RunStore].
//
// Runs live in eval_runs; every scored item lives in eval_items with its
// counts as columns and its alignment and phonetic annotations as JSONB.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	run, _ := s.SaveRun(ctx, "nightly", settings, report)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlRuns = `
CREATE TABLE IF NOT EXISTS eval_runs (
    id              BIGSERIAL         PRIMARY KEY,
    label           TEXT              NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ       NOT NULL DEFAULT now(),
    merge_limit     INTEGER           NOT NULL DEFAULT 0,
    case_sensitive  BOOLEAN           NOT NULL DEFAULT false,
    phonetic        BOOLEAN           NOT NULL DEFAULT false,
    items           INTEGER           NOT NULL,
    corpus_wer      DOUBLE PRECISION  NOT NULL,
    mean_wer        DOUBLE PRECISION  NOT NULL,
    totals          JSONB             NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_eval_runs_created_at
    ON eval_runs (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_eval_runs_label
    ON eval_runs (label);
`

const ddlItems = `
CREATE TABLE IF NOT EXISTS eval_items (
    run_id                  BIGINT            NOT NULL REFERENCES eval_runs (id) ON DELETE CASCADE,
    position                INTEGER           NOT NULL,
    item_id                 TEXT              NOT NULL,
    distance                INTEGER           NOT NULL,
    wer                     DOUBLE PRECISION  NOT NULL,
    reference_tokens        INTEGER           NOT NULL,
    hypothesis_tokens       INTEGER           NOT NULL,
    matches                 INTEGER           NOT NULL,
    substitutions           INTEGER           NOT NULL,
    deletions               INTEGER           NOT NULL,
    insertions              INTEGER           NOT NULL,
    merges                  INTEGER           NOT NULL,
    phonetic_substitutions  INTEGER           NOT NULL,
    alignment               JSONB             NOT NULL DEFAULT '[]',
    phonetic                JSONB             NOT NULL DEFAULT '[]',
    PRIMARY KEY (run_id, position),
    UNIQUE (run_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_eval_items_wer
    ON eval_items (run_id, wer DESC);
`

// Migrate creates or ensures all required tables exist. It is idempotent
// (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and safe to call
// on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlRuns, ddlItems} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
