package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/werkit/internal/eval"
)

// DefaultMemCapacity is the number of runs a [MemStore] keeps by default.
const DefaultMemCapacity = 100

// Compile-time interface check.
var _ RunStore = (*MemStore)(nil)

// MemStore is an in-memory [RunStore]. It keeps the most recent runs up to
// its capacity and evicts the oldest ones. Stored reports are shared with
// the caller and must not be modified afterwards.
type MemStore struct {
	mu       sync.RWMutex
	capacity int
	nextID   int64
	runs     []memRun // oldest first
	now      func() time.Time
}

type memRun struct {
	run    Run
	report *eval.Report
}

// NewMemStore returns a [MemStore] holding up to capacity runs. capacity <= 0
// means [DefaultMemCapacity].
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = DefaultMemCapacity
	}
	return &MemStore{capacity: capacity, nextID: 1, now: time.Now}
}

// SaveRun implements [RunStore].
func (s *MemStore) SaveRun(_ context.Context, label string, settings Settings, report *eval.Report) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := Summarize(label, settings, report)
	run.ID = s.nextID
	run.CreatedAt = s.now().UTC()
	s.nextID++

	s.runs = append(s.runs, memRun{run: run, report: report})
	if over := len(s.runs) - s.capacity; over > 0 {
		s.runs = slices.Delete(s.runs, 0, over)
	}
	return run, nil
}

// ListRuns implements [RunStore].
func (s *MemStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Run, 0, n)
	for i := len(s.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.runs[i].run)
	}
	return out, nil
}

// GetRun implements [RunStore].
func (s *MemStore) GetRun(_ context.Context, id int64) (Run, *eval.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := slices.BinarySearchFunc(s.runs, id, func(r memRun, id int64) int {
		return cmp.Compare(r.run.ID, id)
	})
	if !ok {
		return Run{}, nil, ErrNotFound
	}
	return s.runs[i].run, s.runs[i].report, nil
}
