package core

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/peerglobe/internal/logging"
	"github.com/signalsfoundry/peerglobe/model"
)

// Renderer is the publication surface of a globe renderer. A refresh cycle
// always calls all three setters, in order, so point, label and arc data
// stay consistent with each other.
type Renderer interface {
	SetPoints(points []model.PeerRecord)
	SetLabels(labels []model.PeerRecord)
	SetArcs(arcs []model.ArcEdge)
}

// Recorder receives refresh pipeline measurements. The observability
// package provides the Prometheus-backed implementation; core itself only
// depends on this interface.
type Recorder interface {
	ObserveRefresh(d time.Duration, peers, clusters, arcs int)
	IncEmptySnapshot()
	IncMalformedRecord()
	IncBufferedRefresh()
}

type nopRecorder struct{}

func (nopRecorder) ObserveRefresh(time.Duration, int, int, int) {}
func (nopRecorder) IncEmptySnapshot()                           {}
func (nopRecorder) IncMalformedRecord()                         {}
func (nopRecorder) IncBufferedRefresh()                         {}

// RefreshService owns the renderer handle and orchestrates a full refresh
// cycle: validate, spread coincident peers, build the arc graph, publish.
// It is the only mutator of the published dataset.
//
// The service starts uninitialized. A refresh requested before SetReady is
// buffered in a single slot, where a newer snapshot overwrites an older
// buffered one, and applied once the renderer is ready.
type RefreshService struct {
	// SpreadRadiusDeg is the outer ring radius passed to Spread.
	SpreadRadiusDeg float64

	// ArcColor is applied to every generated arc. Empty selects
	// model.DefaultArcColor.
	ArcColor model.Color

	// Metrics receives pipeline measurements. Defaults to a no-op.
	Metrics Recorder

	mu         sync.Mutex
	renderer   Renderer
	ready      bool
	pending    []model.PeerRecord
	hasPending bool

	log logging.Logger
}

// NewRefreshService constructs the service around its renderer dependency.
func NewRefreshService(renderer Renderer, log logging.Logger) *RefreshService {
	if log == nil {
		log = logging.Noop()
	}
	return &RefreshService{
		SpreadRadiusDeg: DefaultSpreadRadiusDeg,
		Metrics:         nopRecorder{},
		renderer:        renderer,
		log:             log,
	}
}

// Refresh runs one full refresh cycle for the given snapshot. The snapshot
// is treated as authoritative and complete; the previously published dataset
// is replaced wholesale. The caller's slice is never mutated.
//
// An empty snapshot is a safe no-op: a warning is logged and the currently
// published data stays untouched. Malformed records (non-finite lat/lon) are
// skipped individually rather than failing the whole cycle.
func (s *RefreshService) Refresh(ctx context.Context, snapshot []model.PeerRecord) {
	if len(snapshot) == 0 {
		s.log.Warn(ctx, "refresh skipped: empty peer snapshot")
		s.recorder().IncEmptySnapshot()
		return
	}

	// Working copy: validation and spreading must never alias the
	// caller-owned array.
	clean := make([]model.PeerRecord, 0, len(snapshot))
	for _, p := range snapshot {
		if !validCoordinates(p) {
			s.log.Warn(ctx, "refresh: skipping malformed peer record",
				logging.String("peer", p.Name),
				logging.Float64("lat", p.Lat),
				logging.Float64("lon", p.Lon),
			)
			s.recorder().IncMalformedRecord()
			continue
		}
		clean = append(clean, p)
	}
	if len(clean) == 0 {
		s.log.Warn(ctx, "refresh skipped: no valid records in snapshot",
			logging.Int("discarded", len(snapshot)))
		s.recorder().IncEmptySnapshot()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		// Single buffered slot: only the latest snapshot survives.
		s.pending = clean
		s.hasPending = true
		s.recorder().IncBufferedRefresh()
		s.log.Info(ctx, "renderer not ready; snapshot buffered",
			logging.Int("peers", len(clean)))
		return
	}

	s.publishLocked(ctx, clean)
}

// SetReady marks the renderer as initialized and applies any buffered
// snapshot. Calling it more than once is harmless.
func (s *RefreshService) SetReady(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return
	}
	s.ready = true

	if s.hasPending {
		snap := s.pending
		s.pending = nil
		s.hasPending = false
		s.publishLocked(ctx, snap)
	}
}

// Ready reports whether the renderer has been marked initialized.
func (s *RefreshService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// publishLocked runs the spread → arcs → publish pipeline. Caller holds s.mu.
func (s *RefreshService) publishLocked(ctx context.Context, peers []model.PeerRecord) {
	start := time.Now()

	clusters := CoincidentClusters(peers)
	spread := Spread(peers, s.SpreadRadiusDeg)
	arcs := BuildArcs(spread, s.ArcColor)

	// Points, labels and arcs are published together; the renderer swaps
	// them in wholesale, never field-by-field.
	s.renderer.SetPoints(spread)
	s.renderer.SetLabels(spread)
	s.renderer.SetArcs(arcs)

	elapsed := time.Since(start)
	s.recorder().ObserveRefresh(elapsed, len(spread), clusters, len(arcs))
	s.log.Info(ctx, "published globe dataset",
		logging.Int("peers", len(spread)),
		logging.Int("clusters", clusters),
		logging.Int("arcs", len(arcs)),
		logging.Duration("elapsed", elapsed),
	)
}

func (s *RefreshService) recorder() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}

func validCoordinates(p model.PeerRecord) bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lon) && !math.IsInf(p.Lon, 0)
}
