// Package observe provides application-wide observability primitives for
// werkit: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all werkit metrics.
const meterName = "github.com/MrWong99/werkit"

// Operation names used as the "op" attribute.
const (
	OpDistance = "distance"
	OpWER      = "wer"
	OpAlign    = "align"
	OpEvaluate = "evaluate"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ScoreDuration tracks the time spent building a distance table and
	// deriving results from it. Use with attribute:
	//   attribute.String("op", ...)
	ScoreDuration metric.Float64Histogram

	// ScoreRequests counts scoring operations. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	ScoreRequests metric.Int64Counter

	// Tokens records input sizes. Use with attribute:
	//   attribute.String("side", "reference"|"hypothesis")
	Tokens metric.Int64Histogram

	// Merges counts concatenation matches found in alignments.
	Merges metric.Int64Counter

	// PhoneticSubstitutions counts substitutions flagged as sounding alike.
	PhoneticSubstitutions metric.Int64Counter

	// BatchItems counts evaluated batch items. Use with attribute:
	//   attribute.String("status", ...)
	BatchItems metric.Int64Counter

	// ActiveBatches tracks the number of batch evaluations in flight.
	ActiveBatches metric.Int64UpDownCounter

	// ConfigReloads counts configuration hot reloads. Use with attribute:
	//   attribute.String("status", ...)
	ConfigReloads metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// scoreBuckets defines histogram bucket boundaries (in seconds) for table
// construction, which ranges from microseconds to seconds with input size.
var scoreBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// tokenBuckets defines histogram bucket boundaries for token counts.
var tokenBuckets = []float64{
	1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ScoreDuration, err = m.Float64Histogram("werkit.score.duration",
		metric.WithDescription("Latency of scoring operations by op."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScoreRequests, err = m.Int64Counter("werkit.score.requests",
		metric.WithDescription("Total scoring operations by op and status."),
	); err != nil {
		return nil, err
	}
	if met.Tokens, err = m.Int64Histogram("werkit.score.tokens",
		metric.WithDescription("Token counts of scored inputs by side."),
		metric.WithExplicitBucketBoundaries(tokenBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Merges, err = m.Int64Counter("werkit.merges",
		metric.WithDescription("Total concatenation matches found in alignments."),
	); err != nil {
		return nil, err
	}
	if met.PhoneticSubstitutions, err = m.Int64Counter("werkit.phonetic_substitutions",
		metric.WithDescription("Total substitutions whose sides sound alike."),
	); err != nil {
		return nil, err
	}
	if met.BatchItems, err = m.Int64Counter("werkit.batch.items",
		metric.WithDescription("Total batch items evaluated by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveBatches, err = m.Int64UpDownCounter("werkit.active_batches",
		metric.WithDescription("Number of batch evaluations in flight."),
	); err != nil {
		return nil, err
	}
	if met.ConfigReloads, err = m.Int64Counter("werkit.config.reloads",
		metric.WithDescription("Total configuration reloads by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("werkit.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordScore records the duration and request counter for one scoring
// operation. status is "ok" or "error".
func (m *Metrics) RecordScore(ctx context.Context, op, status string, d time.Duration) {
	m.ScoreDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("op", op)),
	)
	m.ScoreRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordTokens records the token counts of both compared sides.
func (m *Metrics) RecordTokens(ctx context.Context, reference, hypothesis int) {
	m.Tokens.Record(ctx, int64(reference), metric.WithAttributes(attribute.String("side", "reference")))
	m.Tokens.Record(ctx, int64(hypothesis), metric.WithAttributes(attribute.String("side", "hypothesis")))
}

// RecordBatchItem records one evaluated batch item.
func (m *Metrics) RecordBatchItem(ctx context.Context, status string) {
	m.BatchItems.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordConfigReload records one configuration reload attempt.
func (m *Metrics) RecordConfigReload(ctx context.Context, status string) {
	m.ConfigReloads.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
