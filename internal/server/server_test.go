package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/werkit/internal/config"
	"github.com/MrWong99/werkit/internal/health"
	"github.com/MrWong99/werkit/internal/observe"
	"github.com/MrWong99/werkit/internal/server"
)

// newServer returns a Server backed by no-op metrics and a private registry.
func newServer(t *testing.T, cfg *config.Config, opts ...server.Option) *server.Server {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	opts = append([]server.Option{
		server.WithMetrics(m),
		server.WithGatherer(prometheus.NewRegistry()),
	}, opts...)
	return server.New(cfg, opts...)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return v
}

func TestDistance(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"text", `{"left": "this isa text", "right": "thisis atext", "merge_limit": 3}`, 0},
		{"text without merges", `{"left": "this isa text", "right": "thisis atext"}`, 3},
		{"tokens", `{"left": ["non", "smoker"], "right": ["nonsmoker"], "merge_limit": 1}`, 0},
		{"mixed", `{"left": "a b", "right": ["a", "c"]}`, 1},
		{"empty tokens kept", `{"left": ["a", ""], "right": "a"}`, 1},
		{"case folded by default", `{"left": "Hello", "right": "hello"}`, 0},
		{"case sensitive override", `{"left": "Hello", "right": "hello", "case_sensitive": true}`, 1},
		{"empty sides", `{"left": "", "right": []}`, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, srv, http.MethodPost, "/v1/distance", tc.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
			}
			got := decodeBody[struct {
				Distance int `json:"distance"`
			}](t, rec)
			if got.Distance != tc.want {
				t.Errorf("distance = %d, want %d", got.Distance, tc.want)
			}
		})
	}
}

func TestWER(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/v1/wer", `{"incoming": "I want", "expected": "I do want"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decodeBody[struct {
		WER      float64 `json:"wer"`
		Distance int     `json:"distance"`
	}](t, rec)
	if got.Distance != 1 {
		t.Errorf("distance = %d, want 1", got.Distance)
	}
	if got.WER != 1.0/3.0 {
		t.Errorf("wer = %v, want 1/3", got.WER)
	}
}

func TestAlign(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/v1/align", `{"left": "I do want", "right": "I want"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decodeBody[struct {
		Pairs [][]*string `json:"pairs"`
		Ops   []string    `json:"ops"`
	}](t, rec)

	if len(got.Pairs) != 3 {
		t.Fatalf("pairs = %d, want 3", len(got.Pairs))
	}
	if got.Pairs[1][0] == nil || *got.Pairs[1][0] != "do" || got.Pairs[1][1] != nil {
		t.Errorf("pairs[1] should be [\"do\", null]")
	}
	wantOps := []string{"match", "delete", "match"}
	for i, op := range wantOps {
		if got.Ops[i] != op {
			t.Errorf("ops[%d] = %q, want %q", i, got.Ops[i], op)
		}
	}
}

func TestAlign_Merge(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/v1/align", `{"left": "non smoker", "right": "nonsmoker", "merge_limit": 1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `["non smoker","nonsmoker"]`) {
		t.Errorf("body should contain merged pair, got %s", rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"merge"`) {
		t.Errorf("body should contain merge op, got %s", rec.Body)
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	body := `{"items": [
		{"id": "a", "reference": "I won the race", "hypothesis": "I one the race"},
		{"reference": "the nonsmoker", "hypothesis": "the non smoker"}
	], "merge_limit": 1}`
	rec := do(t, srv, http.MethodPost, "/v1/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decodeBody[struct {
		Items []struct {
			ID                    string `json:"id"`
			Distance              int    `json:"distance"`
			PhoneticSubstitutions int    `json:"phonetic_substitutions"`
		} `json:"items"`
		Totals struct {
			Distance int `json:"distance"`
		} `json:"totals"`
		CorpusWER float64 `json:"corpus_wer"`
	}](t, rec)

	if len(got.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(got.Items))
	}
	if got.Items[0].ID != "a" || got.Items[1].ID != "2" {
		t.Errorf("ids = %q, %q, want a, 2", got.Items[0].ID, got.Items[1].ID)
	}
	if got.Items[0].PhoneticSubstitutions != 1 {
		t.Errorf("phonetic substitutions = %d, want 1", got.Items[0].PhoneticSubstitutions)
	}
	if got.Items[1].Distance != 0 {
		t.Errorf("merged item distance = %d, want 0", got.Items[1].Distance)
	}
	// 1 / (4 + 3)
	if got.CorpusWER != 1.0/7.0 {
		t.Errorf("corpus_wer = %v, want 1/7", got.CorpusWER)
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()
	small := config.Default()
	small.Server.MaxBodyBytes = 64
	srv := newServer(t, small)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{"merge limit too large", "/v1/distance", `{"left": "a", "right": "b", "merge_limit": 65}`, http.StatusBadRequest, "merge_limit"},
		{"negative merge limit", "/v1/align", `{"left": "a", "right": "b", "merge_limit": -1}`, http.StatusBadRequest, "merge_limit"},
		{"missing side", "/v1/distance", `{"left": "a"}`, http.StatusBadRequest, "right is required"},
		{"wrong input type", "/v1/distance", `{"left": 42, "right": "b"}`, http.StatusBadRequest, "string or an array"},
		{"non-string tokens", "/v1/align", `{"left": [1, 2], "right": "b"}`, http.StatusBadRequest, "string or an array"},
		{"unknown field", "/v1/wer", `{"incoming": "a", "expected": "b", "limit": 2}`, http.StatusBadRequest, "limit"},
		{"wer sides named for wer", "/v1/wer", `{"left": "a", "right": "b"}`, http.StatusBadRequest, "unknown field"},
		{"malformed json", "/v1/distance", `{"left": `, http.StatusBadRequest, "invalid request body"},
		{"trailing data", "/v1/distance", `{"left": "a", "right": "b"} {}`, http.StatusBadRequest, "trailing"},
		{"no items", "/v1/evaluate", `{"items": []}`, http.StatusBadRequest, "no items"},
		{"duplicate ids", "/v1/evaluate", `{"items": [{"id": "x"}, {"id": "x"}]}`, http.StatusBadRequest, "duplicate"},
		{"body too large", "/v1/distance", `{"left": "` + strings.Repeat("a ", 64) + `", "right": "b"}`, http.StatusRequestEntityTooLarge, "too large"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, srv, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.wantStatus, rec.Body)
			}
			got := decodeBody[struct {
				Error string `json:"error"`
			}](t, rec)
			if !strings.Contains(got.Error, tc.wantErr) {
				t.Errorf("error = %q, should contain %q", got.Error, tc.wantErr)
			}
		})
	}
}

func TestTableCellBudget(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Scoring.MaxTableCells = 100
	srv := newServer(t, cfg)

	// 21·21 cells
	long := strings.TrimSpace(strings.Repeat("w ", 20))
	longTokens := `["` + strings.Join(strings.Fields(long), `", "`) + `"]`

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{"small distance", "/v1/distance", `{"left": "a b", "right": "a"}`, http.StatusOK, ""},
		{"distance", "/v1/distance", `{"left": "` + long + `", "right": "` + long + `"}`, http.StatusRequestEntityTooLarge, "441 table cells"},
		{"token arrays", "/v1/distance", `{"left": ` + longTokens + `, "right": ` + longTokens + `}`, http.StatusRequestEntityTooLarge, "441 table cells"},
		{"wer", "/v1/wer", `{"incoming": "` + long + `", "expected": "` + long + `"}`, http.StatusRequestEntityTooLarge, "comparison too large"},
		{"align", "/v1/align", `{"left": "` + long + `", "right": "` + long + `"}`, http.StatusRequestEntityTooLarge, "comparison too large"},
		{"one long side", "/v1/align", `{"left": "` + long + ` w w w w", "right": "w w w w"}`, http.StatusRequestEntityTooLarge, "125 table cells"},
		{"evaluate item", "/v1/evaluate", `{"items": [
			{"reference": "a", "hypothesis": "a"},
			{"reference": "` + long + `", "hypothesis": "` + long + `"}
		]}`, http.StatusRequestEntityTooLarge, "item 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, srv, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tc.wantStatus, rec.Body)
			}
			if tc.wantErr == "" {
				return
			}
			got := decodeBody[struct {
				Error string `json:"error"`
			}](t, rec)
			if !strings.Contains(got.Error, tc.wantErr) {
				t.Errorf("error = %q, should contain %q", got.Error, tc.wantErr)
			}
		})
	}
}

func TestApply_TableCellBudget(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Scoring.MaxTableCells = 10
	srv := newServer(t, cfg)

	body := `{"left": "a b c d", "right": "a b c d"}`
	if rec := do(t, srv, http.MethodPost, "/v1/distance", body); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413, body = %s", rec.Code, rec.Body)
	}

	next := config.Default()
	next.Scoring.MaxTableCells = 0
	srv.Apply(next)

	if rec := do(t, srv, http.MethodPost, "/v1/distance", body); rec.Code != http.StatusOK {
		t.Errorf("status after lifting the budget = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/v1/distance", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestApply_SwapsDefaults(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Scoring.MergeLimit = 1
	srv := newServer(t, cfg)

	distance := func() int {
		rec := do(t, srv, http.MethodPost, "/v1/distance", `{"left": "non smoker", "right": "nonsmoker"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		return decodeBody[struct {
			Distance int `json:"distance"`
		}](t, rec).Distance
	}

	if d := distance(); d != 0 {
		t.Errorf("distance with merge_limit 1 = %d, want 0", d)
	}

	next := config.Default()
	next.Scoring.MergeLimit = 0
	srv.Apply(next)

	if d := distance(); d != 2 {
		t.Errorf("distance after reload = %d, want 2", d)
	}
}

func TestApply_DisablesPhonetic(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Phonetic.Enabled = false
	srv := newServer(t, cfg)

	rec := do(t, srv, http.MethodPost, "/v1/evaluate", `{"items": [{"reference": "won", "hypothesis": "one"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), `"phonetic":`) {
		t.Errorf("phonetic annotation should be off, got %s", rec.Body)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil, server.WithVersion("v0.1.0"))

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decodeBody[struct {
		Version string `json:"version"`
		Checks  map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}](t, rec)
	if got.Version != "v0.1.0" {
		t.Errorf("version = %q, want v0.1.0", got.Version)
	}
	if got.Checks["scoring"].Status != "ok" {
		t.Errorf("scoring check = %q, want ok", got.Checks["scoring"].Status)
	}
}

func TestReadyz_FailingChecker(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil, server.WithChecker(health.Checker{
		Name:  "config",
		Check: func(context.Context) error { return errors.New("reload failed") },
	}))

	rec := do(t, srv, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "werkit_test_total",
		Help: "Test counter.",
	}))
	srv := newServer(t, nil, server.WithGatherer(reg))

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "werkit_test_total") {
		t.Errorf("metrics output missing registered counter:\n%s", rec.Body)
	}
}
