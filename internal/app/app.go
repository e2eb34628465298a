// Package app wires the werkit subsystems into a running scoring service.
//
// The App struct owns the full lifecycle. New opens the run store and builds
// the HTTP server plus, when a config file is given, the hot-reload watcher.
// Run serves until the context is cancelled and Shutdown tears everything
// down in order.
//
// For testing, use [App.Handler] to exercise the routes without a listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/werkit/internal/config"
	"github.com/MrWong99/werkit/internal/health"
	"github.com/MrWong99/werkit/internal/observe"
	"github.com/MrWong99/werkit/internal/resilience"
	"github.com/MrWong99/werkit/internal/server"
	"github.com/MrWong99/werkit/internal/store"
	"github.com/MrWong99/werkit/internal/store/postgres"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes of the scoring service.
type App struct {
	cfg *config.Config

	version       string
	configPath    string
	watchInterval time.Duration
	level         *slog.LevelVar
	metrics       *observe.Metrics
	gatherer      prometheus.Gatherer

	// Subsystems, initialised in New and torn down in Shutdown.
	runs    store.RunStore
	server  *server.Server
	httpSrv *http.Server
	watcher *config.Watcher

	mu        sync.Mutex
	reloadErr error
	addr      net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithConfigPath enables hot reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithWatchInterval sets the config polling interval.
func WithWatchInterval(d time.Duration) Option {
	return func(a *App) { a.watchInterval = d }
}

// WithLevelVar lets config reloads adjust the log level of the handler
// that uses lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithVersion sets the version reported by the health endpoints.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithMetrics injects a metrics sink instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets the Prometheus gatherer served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// WithRunStore injects a run store instead of the one selected by the
// storage config section.
func WithRunStore(rs store.RunStore) Option {
	return func(a *App) { a.runs = rs }
}

// WithCloser registers fn to run during Shutdown after the server stopped.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. ctx bounds the connection to the run
// database. When a config path is set the file is watched and
// hot-reloadable changes are applied without a restart.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Run store ─────────────────────────────────────────────────────
	checkers := []health.Checker{{Name: "config", Check: a.checkConfig}}
	if a.runs == nil {
		switch {
		case cfg.Storage.PostgresDSN != "":
			pg, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN)
			if err != nil {
				return nil, fmt.Errorf("app: init run store: %w", err)
			}
			guarded := store.Guard(pg, resilience.Config{Name: "postgres"})
			a.runs = guarded
			a.closers = append(a.closers, func() error { pg.Close(); return nil })
			checkers = append(checkers, health.Checker{
				Name:     "storage",
				Optional: true,
				Check: func(ctx context.Context) error {
					if guarded.State() == resilience.StateOpen {
						return resilience.ErrCircuitOpen
					}
					return pg.Ping(ctx)
				},
			})
			slog.Info("run store ready", "backend", "postgres")
		case cfg.Storage.Path != "":
			a.runs = store.NewFileStore(cfg.Storage.Path)
			slog.Info("run store ready", "backend", "file", "path", cfg.Storage.Path)
		default:
			a.runs = store.NewMemStore(cfg.Storage.MaxRuns)
			slog.Info("run store ready", "backend", "memory")
		}
	}

	// ── 2. HTTP API ──────────────────────────────────────────────────────
	sopts := []server.Option{
		server.WithMetrics(a.metrics),
		server.WithGatherer(a.gatherer),
		server.WithVersion(a.version),
		server.WithRunStore(a.runs),
	}
	for _, c := range checkers {
		sopts = append(sopts, server.WithChecker(c))
	}
	a.server = server.New(cfg, sopts...)
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.server,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// ── 3. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		var wopts []config.WatcherOption
		if a.watchInterval > 0 {
			wopts = append(wopts, config.WithInterval(a.watchInterval))
		}
		wopts = append(wopts, config.WithErrorHandler(a.reloadFailed))

		w, err := config.NewWatcher(a.configPath, a.reload, wopts...)
		if err != nil {
			a.closeAll()
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append([]func() error{func() error { w.Stop(); return nil }}, a.closers...)
	}

	return a, nil
}

// closeAll runs the closers registered so far when New fails part way.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		_ = closer()
	}
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.server }

// Addr returns the listener address once Run has started listening, or nil.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled
// or the server fails. Cancellation returns ctx.Err(); call Shutdown
// afterwards to drain open connections.
func (a *App) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("app: listen on %q: %w", a.httpSrv.Addr, err)
	}

	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.httpSrv.Serve(ln)
	}()

	slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and runs the closers in order. It respects
// the context deadline: if ctx expires, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// reload applies the hot-reloadable parts of a changed config.
func (a *App) reload(c config.Change) {
	a.mu.Lock()
	a.reloadErr = nil
	a.mu.Unlock()
	a.metrics.RecordConfigReload(context.Background(), "ok")

	d := c.Diff
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
	}
	if d.ScoringChanged || d.PhoneticChanged || d.BatchChanged {
		a.server.Apply(c.New)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "settings", d.RestartRequired)
	}
	if !d.Changed() {
		return
	}

	slog.Info("config applied",
		"log_level", c.New.Server.LogLevel,
		"merge_limit", c.New.Scoring.MergeLimit,
		"case_sensitive", c.New.Scoring.CaseSensitive,
		"phonetic", c.New.Phonetic.Enabled,
		"workers", c.New.Batch.Workers,
	)
}

// reloadFailed records a config file that changed but did not load.
func (a *App) reloadFailed(err error) {
	a.mu.Lock()
	a.reloadErr = err
	a.mu.Unlock()
	a.metrics.RecordConfigReload(context.Background(), "error")
}

// checkConfig fails readiness while the config file on disk is invalid.
func (a *App) checkConfig(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reloadErr != nil {
		return fmt.Errorf("last reload failed: %w", a.reloadErr)
	}
	return nil
}
