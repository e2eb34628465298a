package observe

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of a request back to the client.
const CorrelationHeader = "X-Correlation-ID"

// responseWriter records the status and body size written by a handler.
type responseWriter struct {
	http.ResponseWriter
	status   int
	written  int64
	hijacked bool
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// Hijack hands the connection to a websocket upgrade. The request is then
// reported with status 101.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observe: response writer does not support hijacking")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		w.status = http.StatusSwitchingProtocols
		w.hijacked = true
	}
	return conn, rw, err
}

// Unwrap exposes the wrapped writer to [http.ResponseController].
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// route returns the path of the matched [http.ServeMux] pattern so that
// metric cardinality stays bounded. Handlers outside a mux report the raw
// path.
func route(r *http.Request) string {
	if r.Pattern == "" {
		return r.URL.Path
	}
	if _, path, ok := strings.Cut(r.Pattern, " "); ok {
		return path
	}
	return r.Pattern
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

// WithQuietRoutes logs requests to the given routes at debug level. Use it
// for probe and scrape endpoints that would otherwise flood the log.
func WithQuietRoutes(routes ...string) MiddlewareOption {
	return func(mw *middleware) {
		for _, rt := range routes {
			mw.quiet[rt] = struct{}{}
		}
	}
}

type middleware struct {
	metrics *Metrics
	prop    propagation.TraceContext
	quiet   map[string]struct{}
}

// Middleware traces, measures and logs every request passing through it.
// Incoming W3C trace context is continued and the trace ID is returned in
// the [CorrelationHeader] response header. The route is resolved after the
// wrapped handler ran so that it reflects the pattern an inner
// [http.ServeMux] matched.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw := &middleware{metrics: m, quiet: make(map[string]struct{})}
	for _, o := range opts {
		o(mw)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mw.serve(next, w, r)
		})
	}
}

func (mw *middleware) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := mw.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	cid := CorrelationID(ctx)
	if cid != "" {
		w.Header().Set(CorrelationHeader, cid)
	}
	mw.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	r = r.WithContext(ctx)
	rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(rw, r)

	elapsed := time.Since(start)
	rt := route(r)
	mw.metrics.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", rt),
			attribute.Int("status", rw.status),
		),
	)

	span.SetName("HTTP " + r.Method + " " + rt)
	span.SetAttributes(
		semconv.HTTPResponseStatusCode(rw.status),
		semconv.HTTPResponseBodySize(int(rw.written)),
	)

	level := slog.LevelInfo
	if _, ok := mw.quiet[rt]; ok {
		level = slog.LevelDebug
	}
	slog.LogAttrs(ctx, level, "request completed",
		slog.String("trace_id", cid),
		slog.String("method", r.Method),
		slog.String("route", rt),
		slog.Int("status", rw.status),
		slog.Int64("bytes", rw.written),
		slog.Bool("upgraded", rw.hijacked),
		slog.Duration("duration", elapsed),
	)
}
