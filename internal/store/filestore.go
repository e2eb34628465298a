package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/werkit/internal/eval"
)

// Compile-time interface check.
var _ RunStore = (*FileStore)(nil)

// FileStore persists runs as JSON lines in a local file, one run with its
// items per line. Every read scans the file, so it suits CLI use and small
// histories rather than a busy service. Safe for concurrent use within one
// process.
type FileStore struct {
	mu     sync.Mutex
	path   string
	lastID int64 // -1 until the file was read
	now    func() time.Time
}

// fileRecord is one line of the file.
type fileRecord struct {
	Run   Run        `json:"run"`
	Items []fileItem `json:"items"`
}

// fileItem replaces the pair-form alignment of an item with the stored form
// that keeps operations.
type fileItem struct {
	eval.ItemResult
	Alignment []AlignedPair `json:"alignment"`
}

// NewFileStore returns a [FileStore] writing to path. The file is created on
// the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lastID: -1, now: time.Now}
}

// SaveRun implements [RunStore].
func (s *FileStore) SaveRun(_ context.Context, label string, settings Settings, report *eval.Report) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastID < 0 {
		s.lastID = 0
		if err := s.scan(func(rec *fileRecord) bool {
			s.lastID = max(s.lastID, rec.Run.ID)
			return true
		}); err != nil {
			s.lastID = -1
			return Run{}, err
		}
	}

	run := Summarize(label, settings, report)
	run.ID = s.lastID + 1
	run.CreatedAt = s.now().UTC()

	rec := fileRecord{Run: run, Items: make([]fileItem, len(report.Items))}
	for i, it := range report.Items {
		rec.Items[i] = fileItem{ItemResult: it, Alignment: EncodePairs(it.Alignment)}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return Run{}, fmt.Errorf("store: marshal run: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Run{}, fmt.Errorf("store: open %q: %w", s.path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return Run{}, fmt.Errorf("store: write %q: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return Run{}, fmt.Errorf("store: close %q: %w", s.path, err)
	}
	s.lastID = run.ID
	return run, nil
}

// ListRuns implements [RunStore].
func (s *FileStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []Run
	if err := s.scan(func(rec *fileRecord) bool {
		runs = append(runs, rec.Run)
		return true
	}); err != nil {
		return nil, err
	}

	slices.Reverse(runs)
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	if runs == nil {
		runs = []Run{}
	}
	return runs, nil
}

// GetRun implements [RunStore].
func (s *FileStore) GetRun(_ context.Context, id int64) (Run, *eval.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *fileRecord
	if err := s.scan(func(rec *fileRecord) bool {
		if rec.Run.ID == id {
			found = rec
			return false
		}
		return true
	}); err != nil {
		return Run{}, nil, err
	}
	if found == nil {
		return Run{}, nil, ErrNotFound
	}

	items := make([]eval.ItemResult, len(found.Items))
	for i, fi := range found.Items {
		it := fi.ItemResult
		it.Alignment = DecodePairs(fi.Alignment)
		items[i] = it
	}
	return found.Run, eval.NewReport(items), nil
}

// scan decodes the records of the file in order until fn returns false. A
// missing file has no records.
func (s *FileStore) scan(fn func(*fileRecord) bool) error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: open %q: %w", s.path, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for {
		rec := new(fileRecord)
		err := dec.Decode(rec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("store: read %q: %w", s.path, err)
		}
		if !fn(rec) {
			return nil
		}
	}
}
