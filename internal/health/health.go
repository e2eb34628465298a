// Package health serves the liveness and readiness probes of the werkit
// service.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs every
// registered [Checker] concurrently and answers 503 when a required check
// fails. Optional checks, such as the run store, only degrade the reported
// status: scoring keeps working without them.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Overall and per-check status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness check.
type Checker struct {
	// Name keys the check in the response.
	Name string

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error

	// Optional checks report failures without failing readiness.
	Optional bool
}

// CheckResult is the outcome of one [Checker].
type CheckResult struct {
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
	Optional  bool    `json:"optional,omitempty"`
}

// Response is the JSON body of both probes.
type Response struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	version  string
	checkers []Checker
}

// New returns a [Handler] reporting version and running checkers on each
// readiness probe.
func New(version string, checkers ...Checker) *Handler {
	return &Handler{version: version, checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: StatusOK, Version: h.version})
}

// Readyz answers 200 unless a required check fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := h.Check(r.Context())
	code := http.StatusOK
	if res.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Check runs all checkers concurrently and aggregates their results.
func (h *Handler) Check(ctx context.Context) Response {
	res := Response{
		Status:  StatusOK,
		Version: h.version,
		Checks:  make(map[string]CheckResult, len(h.checkers)),
	}
	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cr := run(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			res.Checks[c.Name] = cr
			switch {
			case cr.Status == StatusOK:
			case c.Optional:
				if res.Status == StatusOK {
					res.Status = StatusDegraded
				}
			default:
				res.Status = StatusFail
			}
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func run(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	cr := CheckResult{
		Status:    StatusOK,
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		Optional:  c.Optional,
	}
	if err != nil {
		cr.Status = StatusFail
		cr.Error = err.Error()
	}
	return cr
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
