package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles Prometheus metrics for the refresh pipeline and the HTTP
// surface. It implements core.Recorder so the refresh service can report
// measurements without depending on Prometheus directly.
type Collector struct {
	gatherer prometheus.Gatherer

	RefreshTotal    prometheus.Counter
	RefreshDuration prometheus.Histogram
	Peers           prometheus.Gauge
	Clusters        prometheus.Gauge
	Arcs            prometheus.Gauge

	EmptySnapshots   prometheus.Counter
	MalformedRecords prometheus.Counter
	BufferedRefresh  prometheus.Counter

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewCollector registers peerglobe Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	refreshTotal, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerglobe_refresh_total",
		Help: "Total number of completed refresh cycles published to renderers.",
	}), "peerglobe_refresh_total")
	if err != nil {
		return nil, err
	}
	refreshDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "peerglobe_refresh_duration_seconds",
		Help:    "Latency of the spread/arc/publish pipeline in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "peerglobe_refresh_duration_seconds")
	if err != nil {
		return nil, err
	}

	peers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peerglobe_peers",
		Help: "Number of peers in the currently published dataset.",
	}), "peerglobe_peers")
	if err != nil {
		return nil, err
	}
	clusters, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peerglobe_coincident_clusters",
		Help: "Number of coincident peer clusters spread in the last refresh.",
	}), "peerglobe_coincident_clusters")
	if err != nil {
		return nil, err
	}
	arcs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "peerglobe_arcs",
		Help: "Number of arcs in the currently published dataset.",
	}), "peerglobe_arcs")
	if err != nil {
		return nil, err
	}

	emptySnapshots, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerglobe_empty_snapshots_total",
		Help: "Refresh requests skipped because the snapshot held no usable records.",
	}), "peerglobe_empty_snapshots_total")
	if err != nil {
		return nil, err
	}
	malformed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerglobe_malformed_records_total",
		Help: "Peer records dropped during validation (non-finite coordinates).",
	}), "peerglobe_malformed_records_total")
	if err != nil {
		return nil, err
	}
	buffered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "peerglobe_buffered_refreshes_total",
		Help: "Refresh requests buffered because the renderer was not ready.",
	}), "peerglobe_buffered_refreshes_total")
	if err != nil {
		return nil, err
	}

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "peerglobe_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by handler, method, and status code.",
	}, []string{"handler", "method", "code"})
	httpRequests, err = registerCounterVec(reg, httpRequests, "peerglobe_http_requests_total")
	if err != nil {
		return nil, err
	}
	httpDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peerglobe_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"handler", "method"})
	httpDurations, err = registerHistogramVec(reg, httpDurations, "peerglobe_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		RefreshTotal:     refreshTotal,
		RefreshDuration:  refreshDuration,
		Peers:            peers,
		Clusters:         clusters,
		Arcs:             arcs,
		EmptySnapshots:   emptySnapshots,
		MalformedRecords: malformed,
		BufferedRefresh:  buffered,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
	}, nil
}

// ObserveRefresh satisfies core.Recorder.
func (c *Collector) ObserveRefresh(d time.Duration, peers, clusters, arcs int) {
	if c == nil {
		return
	}
	c.RefreshTotal.Inc()
	c.RefreshDuration.Observe(d.Seconds())
	c.Peers.Set(float64(peers))
	c.Clusters.Set(float64(clusters))
	c.Arcs.Set(float64(arcs))
}

// IncEmptySnapshot satisfies core.Recorder.
func (c *Collector) IncEmptySnapshot() {
	if c != nil {
		c.EmptySnapshots.Inc()
	}
}

// IncMalformedRecord satisfies core.Recorder.
func (c *Collector) IncMalformedRecord() {
	if c != nil {
		c.MalformedRecords.Inc()
	}
}

// IncBufferedRefresh satisfies core.Recorder.
func (c *Collector) IncBufferedRefresh() {
	if c != nil {
		c.BufferedRefresh.Inc()
	}
}

// Middleware records request counts and durations for an HTTP handler.
func (c *Collector) Middleware(handlerName string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if c == nil {
			return
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(handlerName, r.Method, fmt.Sprintf("%d", rec.status)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(handlerName, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status for metric labels. Hijack is
// forwarded so the websocket upgrade keeps working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
