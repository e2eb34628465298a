// Package server exposes the scoring functions over HTTP.
//
// Routes:
//
//	POST /v1/distance  token edit distance between left and right
//	POST /v1/wer       word error rate of incoming against expected
//	POST /v1/align     alignment of left and right
//	POST /v1/evaluate  corpus evaluation of reference/hypothesis items
//	GET  /v1/runs      stored evaluation runs, newest first
//	GET  /v1/runs/{id} one stored run with its report
//	GET  /v1/stream    websocket scoring of one item per message
//	GET  /healthz      liveness probe
//	GET  /readyz       readiness probe
//	GET  /metrics      Prometheus metrics
//
// Comparison sides accept either a JSON string, which is split on
// whitespace, or an array of strings used as tokens. Requests may override
// the configured merge limit and case policy per call.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/werkit/internal/config"
	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/health"
	"github.com/MrWong99/werkit/internal/observe"
	"github.com/MrWong99/werkit/internal/phonetic"
	"github.com/MrWong99/werkit/internal/store"
	"github.com/MrWong99/werkit/pkg/wer"
)

// settings are the hot-reloadable scoring defaults.
type settings struct {
	scoring  config.ScoringConfig
	workers  int
	phonetic *phonetic.Matcher
}

func settingsFrom(cfg *config.Config) *settings {
	s := &settings{
		scoring: cfg.Scoring,
		workers: cfg.Batch.Workers,
	}
	if cfg.Phonetic.Enabled {
		s.phonetic = phonetic.New(phonetic.WithFuzzyThreshold(cfg.Phonetic.Threshold))
	}
	return s
}

// resolve applies the request overrides on top of the defaults.
func (s *settings) resolve(o overrides) (limit int, caseSensitive bool, err error) {
	limit, caseSensitive = s.scoring.MergeLimit, s.scoring.CaseSensitive
	if o.MergeLimit != nil {
		limit = *o.MergeLimit
		if limit < 0 || limit > wer.MaxMergeLimit {
			return 0, false, fmt.Errorf("merge_limit %d is out of range [0, %d]", limit, wer.MaxMergeLimit)
		}
	}
	if o.CaseSensitive != nil {
		caseSensitive = *o.CaseSensitive
	}
	return limit, caseSensitive, nil
}

// errTableTooLarge is reported when a comparison would exceed the
// configured table cell budget.
var errTableTooLarge = errors.New("comparison too large")

// sized is a request whose comparisons can be measured before scoring.
type sized interface {
	comparisons() [][2]wer.Input
}

// checkSize rejects comparisons whose table would exceed
// scoring.max_table_cells.
func (s *settings) checkSize(cmps ...[2]wer.Input) error {
	maxCells := s.scoring.MaxTableCells
	if maxCells <= 0 {
		return nil
	}
	for i, c := range cmps {
		if n := wer.Cells(c[0], c[1]); n > maxCells {
			if len(cmps) == 1 {
				return fmt.Errorf("%w: needs %d table cells, the limit is %d", errTableTooLarge, n, maxCells)
			}
			return fmt.Errorf("%w: item %d needs %d table cells, the limit is %d", errTableTooLarge, i, n, maxCells)
		}
	}
	return nil
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithGatherer sets the Prometheus gatherer served on /metrics. The default
// is [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithVersion sets the version reported by the health endpoints.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithChecker adds a readiness check to /readyz.
func WithChecker(c health.Checker) Option {
	return func(s *Server) {
		s.checkers = append(s.checkers, c)
	}
}

// WithRunStore enables saving evaluation runs and the /v1/runs endpoints.
func WithRunStore(rs store.RunStore) Option {
	return func(s *Server) {
		s.runs = rs
	}
}

// Server serves the werkit HTTP API. Scoring defaults can be replaced at any
// time with [Server.Apply]; in-flight requests keep the settings they
// started with.
type Server struct {
	settings atomic.Pointer[settings]
	maxBody  int64

	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	version  string
	checkers []health.Checker
	runs     store.RunStore

	handler http.Handler
}

// New builds a [Server] from cfg.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		maxBody:  cfg.Server.MaxBodyBytes,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.settings.Store(settingsFrom(cfg))

	checkers := append([]health.Checker{{Name: "scoring", Check: selfTest}}, s.checkers...)
	hh := health.New(s.version, checkers...)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/distance", s.handleDistance)
	mux.HandleFunc("POST /v1/wer", s.handleWER)
	mux.HandleFunc("POST /v1/align", s.handleAlign)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	hh.Register(mux)

	s.handler = observe.Middleware(s.metrics,
		observe.WithQuietRoutes("/healthz", "/readyz", "/metrics"),
	)(mux)
	return s
}

// Apply replaces the scoring defaults with those of cfg. Listener and body
// limit changes need a restart and are ignored here.
func (s *Server) Apply(cfg *config.Config) {
	s.settings.Store(settingsFrom(cfg))
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// selfTest scores a known pair whose distance is 0 only when concatenation
// matching works.
func selfTest(context.Context) error {
	if d := wer.EditDistance(wer.Text("this isa text"), wer.Text("thisis atext"), wer.WithMergeLimit(3)); d != 0 {
		return fmt.Errorf("self-test distance %d, want 0", d)
	}
	return nil
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	limit, cs, ok := s.decode(w, r, observe.OpDistance, &req, req.validate, &req.overrides)
	if !ok {
		return
	}

	start := time.Now()
	d := wer.EditDistance(req.Left.Input, req.Right.Input,
		wer.WithMergeLimit(limit), wer.WithCaseSensitive(cs))
	s.metrics.RecordScore(r.Context(), observe.OpDistance, "ok", time.Since(start))

	writeJSON(w, http.StatusOK, distanceResponse{Distance: d, MergeLimit: limit})
}

func (s *Server) handleWER(w http.ResponseWriter, r *http.Request) {
	var req werRequest
	limit, cs, ok := s.decode(w, r, observe.OpWER, &req, req.validate, &req.overrides)
	if !ok {
		return
	}

	start := time.Now()
	t := wer.BuildTable(req.Incoming.Input, req.Expected.Input,
		wer.WithMergeLimit(limit), wer.WithCaseSensitive(cs))
	s.metrics.RecordScore(r.Context(), observe.OpWER, "ok", time.Since(start))
	s.metrics.RecordTokens(r.Context(), t.Cols(), t.Rows())

	writeJSON(w, http.StatusOK, werResponse{WER: t.Rate(), Distance: t.Distance()})
}

func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	limit, cs, ok := s.decode(w, r, observe.OpAlign, &req, req.validate, &req.overrides)
	if !ok {
		return
	}

	start := time.Now()
	t := wer.BuildTable(req.Left.Input, req.Right.Input,
		wer.WithMergeLimit(limit), wer.WithCaseSensitive(cs))
	pairs := t.Align()
	s.metrics.RecordScore(r.Context(), observe.OpAlign, "ok", time.Since(start))
	s.metrics.RecordTokens(r.Context(), t.Rows(), t.Cols())

	resp := alignResponse{
		Pairs:    pairs,
		Ops:      make([]wer.Op, len(pairs)),
		Distance: t.Distance(),
	}
	var merges int64
	for i, p := range pairs {
		resp.Ops[i] = p.Op
		if p.Op == wer.OpMerge {
			merges++
		}
	}
	if merges > 0 {
		s.metrics.Merges.Add(r.Context(), merges)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	limit, cs, ok := s.decode(w, r, observe.OpEvaluate, &req, req.validate, &req.overrides)
	if !ok {
		return
	}

	if req.Save && s.runs == nil {
		writeError(w, http.StatusNotImplemented, errNoRunStore)
		return
	}

	st := s.settings.Load()
	workers := st.workers
	if req.Workers != nil {
		workers = *req.Workers
	}
	ev := eval.New(
		eval.WithMergeLimit(limit),
		eval.WithCaseSensitive(cs),
		eval.WithWorkers(workers),
		eval.WithPhonetic(st.phonetic),
		eval.WithMetrics(s.metrics),
	)

	report, err := ev.Run(r.Context(), req.Items)
	switch {
	case errors.Is(err, eval.ErrDuplicateID):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		observe.Logger(r.Context()).Warn("evaluation aborted", "err", err)
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	resp := evaluateResponse{Report: report}
	if req.Save {
		run, err := s.runs.SaveRun(r.Context(), req.Label, store.Settings{
			MergeLimit:    limit,
			CaseSensitive: cs,
			Phonetic:      st.phonetic != nil,
		}, report)
		if err != nil {
			s.storeFailed(w, r, "save run", err)
			return
		}
		resp.RunID = &run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads the request body into req, validates it and resolves the
// comparison settings. Requests whose tables would exceed the cell budget
// are rejected with 413. On failure it writes the error response, records a
// failed operation and returns ok == false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, req any, validate func() error, o *overrides) (limit int, caseSensitive bool, ok bool) {
	fail := func(status int, err error) {
		s.metrics.RecordScore(r.Context(), op, "error", 0)
		observe.Logger(r.Context()).Debug("rejected request", "op", op, "status", status, "err", err)
		writeError(w, status, err)
	}

	if status, err := decodeJSON(w, r, s.maxBody, req); err != nil {
		fail(status, err)
		return 0, false, false
	}
	if err := validate(); err != nil {
		fail(http.StatusBadRequest, err)
		return 0, false, false
	}
	st := s.settings.Load()
	if c, isSized := req.(sized); isSized {
		if err := st.checkSize(c.comparisons()...); err != nil {
			fail(http.StatusRequestEntityTooLarge, err)
			return 0, false, false
		}
	}
	limit, caseSensitive, err := st.resolve(*o)
	if err != nil {
		fail(http.StatusBadRequest, err)
		return 0, false, false
	}
	return limit, caseSensitive, true
}
