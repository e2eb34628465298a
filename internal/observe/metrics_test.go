package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// hasAttr reports whether set contains key=value.
func hasAttr(set attribute.Set, key, value string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.Emit() == value
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordScore(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordScore(ctx, OpWER, "ok", 2*time.Millisecond)
	m.RecordScore(ctx, OpWER, "ok", 3*time.Millisecond)
	m.RecordScore(ctx, OpAlign, "error", time.Millisecond)

	rm := collect(t, reader)

	met := findMetric(rm, "werkit.score.duration")
	if met == nil {
		t.Fatal("werkit.score.duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("werkit.score.duration is not a histogram")
	}
	var werCount uint64
	for _, dp := range hist.DataPoints {
		if hasAttr(dp.Attributes, "op", OpWER) {
			werCount = dp.Count
		}
	}
	if werCount != 2 {
		t.Errorf("wer sample count = %d, want 2", werCount)
	}

	met = findMetric(rm, "werkit.score.requests")
	if met == nil {
		t.Fatal("werkit.score.requests not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("werkit.score.requests is not a sum")
	}
	for _, dp := range sum.DataPoints {
		if hasAttr(dp.Attributes, "op", OpAlign) && hasAttr(dp.Attributes, "status", "error") {
			if dp.Value != 1 {
				t.Errorf("align error count = %d, want 1", dp.Value)
			}
			return
		}
	}
	t.Error("data point with op=align,status=error not found")
}

func TestRecordTokens(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordTokens(context.Background(), 12, 9)

	met := findMetric(collect(t, reader), "werkit.score.tokens")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("metric is not an int64 histogram")
	}
	if len(hist.DataPoints) != 2 {
		t.Fatalf("data points = %d, want 2 (one per side)", len(hist.DataPoints))
	}
	for _, dp := range hist.DataPoints {
		switch {
		case hasAttr(dp.Attributes, "side", "reference"):
			if dp.Sum != 12 {
				t.Errorf("reference sum = %d, want 12", dp.Sum)
			}
		case hasAttr(dp.Attributes, "side", "hypothesis"):
			if dp.Sum != 9 {
				t.Errorf("hypothesis sum = %d, want 9", dp.Sum)
			}
		default:
			t.Errorf("unexpected attributes %v", dp.Attributes)
		}
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Merges.Add(ctx, 3)
	m.PhoneticSubstitutions.Add(ctx, 2)
	m.RecordBatchItem(ctx, "ok")
	m.RecordConfigReload(ctx, "ok")
	m.ActiveBatches.Add(ctx, 1)
	m.ActiveBatches.Add(ctx, 1)
	m.ActiveBatches.Add(ctx, -1)

	rm := collect(t, reader)

	counters := []struct {
		name string
		want int64
	}{
		{"werkit.merges", 3},
		{"werkit.phonetic_substitutions", 2},
		{"werkit.batch.items", 1},
		{"werkit.config.reloads", 1},
		{"werkit.active_batches", 1},
	}

	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
