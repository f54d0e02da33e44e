package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveRefreshUpdatesGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.ObserveRefresh(12*time.Millisecond, 10, 2, 90)
	collector.ObserveRefresh(8*time.Millisecond, 7, 1, 42)

	if got := testutil.ToFloat64(collector.RefreshTotal); got != 2 {
		t.Errorf("peerglobe_refresh_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Peers); got != 7 {
		t.Errorf("peerglobe_peers = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.Clusters); got != 1 {
		t.Errorf("peerglobe_coincident_clusters = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Arcs); got != 42 {
		t.Errorf("peerglobe_arcs = %v, want 42", got)
	}
	if count := histogramSampleCount(t, reg, "peerglobe_refresh_duration_seconds"); count != 2 {
		t.Errorf("refresh duration sample_count = %d, want 2", count)
	}
}

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	collector.IncEmptySnapshot()
	collector.IncMalformedRecord()
	collector.IncMalformedRecord()
	collector.IncBufferedRefresh()

	if got := testutil.ToFloat64(collector.EmptySnapshots); got != 1 {
		t.Errorf("empty snapshots = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.MalformedRecords); got != 2 {
		t.Errorf("malformed records = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.BufferedRefresh); got != 1 {
		t.Errorf("buffered refreshes = %v, want 1", got)
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	handler := collector.Middleware("healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("healthz", "GET", "204")); got != 1 {
		t.Errorf("peerglobe_http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.ObserveRefresh(time.Millisecond, 3, 0, 6)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"peerglobe_refresh_total", "peerglobe_peers", "peerglobe_arcs"} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics output missing %s", want)
		}
	}
}

func TestNewCollectorTwiceReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	first.RefreshTotal.Inc()
	second.RefreshTotal.Inc()

	if got := testutil.ToFloat64(first.RefreshTotal); got != 2 {
		t.Errorf("shared refresh counter = %v, want 2", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	families, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name || family.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		for _, metric := range family.GetMetric() {
			return metric.GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("histogram %s not found", name)
	return 0
}
