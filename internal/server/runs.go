package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MrWong99/werkit/internal/eval"
	"github.com/MrWong99/werkit/internal/observe"
	"github.com/MrWong99/werkit/internal/resilience"
	"github.com/MrWong99/werkit/internal/store"
)

// defaultRunsLimit caps GET /v1/runs when no limit is given.
const defaultRunsLimit = 50

var errNoRunStore = errors.New("run storage is not configured")

type evaluateResponse struct {
	*eval.Report
	RunID *int64 `json:"run_id,omitempty"`
}

type runsResponse struct {
	Runs []store.Run `json:"runs"`
}

type runResponse struct {
	Run    store.Run    `json:"run"`
	Report *eval.Report `json:"report"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, errNoRunStore)
		return
	}

	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit %q must be a non-negative integer", v))
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.storeFailed(w, r, "list runs", err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, errNoRunStore)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("run id %q is not a number", r.PathValue("id")))
		return
	}

	run, report, err := s.runs.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.storeFailed(w, r, "get run", err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Report: report})
}

// storeFailed logs a run store error and answers 503 while the store's
// circuit is open, 500 otherwise.
func (s *Server) storeFailed(w http.ResponseWriter, r *http.Request, action string, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		observe.Logger(r.Context()).Warn("run store unavailable", "action", action)
		writeError(w, http.StatusServiceUnavailable, errors.New("run storage is unavailable"))
		return
	}
	observe.Logger(r.Context()).Error("run store failed", "action", action, "err", err)
	writeError(w, http.StatusInternalServerError, fmt.Errorf("%s failed", action))
}
