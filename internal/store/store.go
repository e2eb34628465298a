// Package store defines persistence for corpus evaluation runs.
//
// A run is one [eval.Report] together with the settings it was scored with.
// Runs are kept so that transcription quality can be tracked across model or
// pipeline changes. [MemStore] keeps a bounded number of runs in process,
// [FileStore] appends them to a JSON lines file and the postgres
// sub-package stores them in PostgreSQL. [Guard] puts a circuit breaker in
// front of any of them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/werkit/internal/eval"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: run not found")

// Settings are the comparison settings a run was scored with.
type Settings struct {
	MergeLimit    int  `json:"merge_limit"`
	CaseSensitive bool `json:"case_sensitive"`
	Phonetic      bool `json:"phonetic"`
}

// Run summarises one stored evaluation.
type Run struct {
	ID        int64       `json:"id"`
	Label     string      `json:"label,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Settings  Settings    `json:"settings"`
	Items     int         `json:"items"`
	CorpusWER float64     `json:"corpus_wer"`
	MeanWER   float64     `json:"mean_wer"`
	Totals    eval.Totals `json:"totals"`
}

// RunStore persists evaluation runs. Implementations must be safe for
// concurrent use.
type RunStore interface {
	// SaveRun stores report and returns the summary of the new run.
	SaveRun(ctx context.Context, label string, settings Settings, report *eval.Report) (Run, error)

	// ListRuns returns up to limit runs, newest first. limit <= 0 returns
	// every run.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// GetRun returns the run with the given ID and its full report, or
	// [ErrNotFound].
	GetRun(ctx context.Context, id int64) (Run, *eval.Report, error)
}

// Summarize builds the [Run] summary of report. ID and CreatedAt are left for
// the store to assign.
func Summarize(label string, settings Settings, report *eval.Report) Run {
	return Run{
		Label:     label,
		Settings:  settings,
		Items:     len(report.Items),
		CorpusWER: report.CorpusWER,
		MeanWER:   report.MeanWER,
		Totals:    report.Totals,
	}
}
