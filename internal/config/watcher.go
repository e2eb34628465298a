package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

const defaultWatchInterval = 5 * time.Second

// Change is delivered to the [Watcher] callback after a modified file loaded
// successfully.
type Change struct {
	Old, New *Config
	Diff     ConfigDiff

	// Recovered is true when the previous modification failed to load.
	Recovered bool
}

// Watcher polls a config file and reports changes that alter the effective
// configuration. Edits that only touch comments, formatting or the
// modification time are not reported, unless they follow a failed load.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Change)
	onError  func(error)

	current atomic.Pointer[Config]
	cancel  context.CancelFunc
	done    chan struct{}

	// Owned by the polling goroutine.
	mtime  time.Time
	failed bool
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler registers fn for modified files that fail to load. The
// last valid config stays current.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher loads path and starts polling it. onChange may be nil.
func NewWatcher(path string, onChange func(Change), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, mtime, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current.Store(cfg)
	w.mtime = mtime

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.poll(ctx)
	return w, nil
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Stop ends polling and waits for an in-flight callback to return. It may be
// called more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return
	}
	if info.ModTime().Equal(w.mtime) {
		return
	}

	cfg, mtime, err := w.load()
	if err != nil {
		// A broken file is reported once per modification.
		w.mtime = info.ModTime()
		w.failed = true
		slog.Warn("config watcher: reload failed", "path", w.path, "err", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.mtime = mtime

	old := w.current.Load()
	c := Change{Old: old, New: cfg, Diff: Diff(old, cfg), Recovered: w.failed}
	w.failed = false
	if !c.Diff.Changed() && !c.Recovered {
		return
	}
	w.current.Store(cfg)
	slog.Info("config watcher: configuration reloaded", "path", w.path, "recovered", c.Recovered)
	if w.onChange != nil {
		w.onChange(c)
	}
}

func (w *Watcher) load() (*Config, time.Time, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, time.Time{}, err
	}
	return cfg, info.ModTime(), nil
}
