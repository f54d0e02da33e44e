package core

import (
	"context"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/peerglobe/model"
)

// fakeRenderer records what the service publishes.
type fakeRenderer struct {
	mu           sync.Mutex
	points       []model.PeerRecord
	labels       []model.PeerRecord
	arcs         []model.ArcEdge
	publishCount int
}

func (r *fakeRenderer) SetPoints(points []model.PeerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = points
}

func (r *fakeRenderer) SetLabels(labels []model.PeerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = labels
}

func (r *fakeRenderer) SetArcs(arcs []model.ArcEdge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arcs = arcs
	r.publishCount++
}

type fakeRecorder struct {
	refreshes int
	empty     int
	malformed int
	buffered  int
}

func (f *fakeRecorder) ObserveRefresh(time.Duration, int, int, int) { f.refreshes++ }
func (f *fakeRecorder) IncEmptySnapshot()                           { f.empty++ }
func (f *fakeRecorder) IncMalformedRecord()                         { f.malformed++ }
func (f *fakeRecorder) IncBufferedRefresh()                         { f.buffered++ }

func readyService(renderer Renderer) *RefreshService {
	svc := NewRefreshService(renderer, nil)
	svc.SetReady(context.Background())
	return svc
}

func TestRefreshPublishesPointsLabelsAndArcsTogether(t *testing.T) {
	renderer := &fakeRenderer{}
	svc := readyService(renderer)

	svc.Refresh(context.Background(), []model.PeerRecord{
		peerAt("a", 10, 20),
		peerAt("b", 30, 40),
	})

	if renderer.publishCount != 1 {
		t.Fatalf("publishCount = %d, want 1", renderer.publishCount)
	}
	if len(renderer.points) != 2 || len(renderer.labels) != 2 {
		t.Errorf("points/labels = %d/%d, want 2/2", len(renderer.points), len(renderer.labels))
	}
	if len(renderer.arcs) != 2 {
		t.Errorf("arcs = %d, want 2", len(renderer.arcs))
	}
	if !reflect.DeepEqual(renderer.points, renderer.labels) {
		t.Errorf("points and labels differ within one cycle")
	}
}

func TestRefreshEmptySnapshotLeavesPublishedDataUntouched(t *testing.T) {
	renderer := &fakeRenderer{}
	rec := &fakeRecorder{}
	svc := readyService(renderer)
	svc.Metrics = rec

	svc.Refresh(context.Background(), []model.PeerRecord{peerAt("a", 1, 1), peerAt("b", 2, 2)})
	before := renderer.points

	svc.Refresh(context.Background(), nil)

	if renderer.publishCount != 1 {
		t.Errorf("publishCount = %d, want 1 (empty refresh must not republish)", renderer.publishCount)
	}
	if !reflect.DeepEqual(renderer.points, before) {
		t.Errorf("published points changed by empty refresh")
	}
	if rec.empty != 1 {
		t.Errorf("empty snapshot counter = %d, want 1", rec.empty)
	}
}

func TestRefreshBeforeReadyBuffersLatestSnapshot(t *testing.T) {
	renderer := &fakeRenderer{}
	rec := &fakeRecorder{}
	svc := NewRefreshService(renderer, nil)
	svc.Metrics = rec

	svc.Refresh(context.Background(), []model.PeerRecord{peerAt("old", 1, 1), peerAt("old2", 2, 2)})
	svc.Refresh(context.Background(), []model.PeerRecord{peerAt("new", 3, 3), peerAt("new2", 4, 4)})

	if renderer.publishCount != 0 {
		t.Fatalf("published before ready: publishCount = %d", renderer.publishCount)
	}

	svc.SetReady(context.Background())

	if renderer.publishCount != 1 {
		t.Fatalf("publishCount after ready = %d, want 1", renderer.publishCount)
	}
	if renderer.points[0].Name != "new" {
		t.Errorf("published %q, want the newer buffered snapshot", renderer.points[0].Name)
	}
	if rec.buffered != 2 {
		t.Errorf("buffered counter = %d, want 2", rec.buffered)
	}
}

func TestSetReadyWithoutPendingPublishesNothing(t *testing.T) {
	renderer := &fakeRenderer{}
	svc := NewRefreshService(renderer, nil)

	svc.SetReady(context.Background())
	svc.SetReady(context.Background())

	if renderer.publishCount != 0 {
		t.Errorf("publishCount = %d, want 0", renderer.publishCount)
	}
	if !svc.Ready() {
		t.Errorf("service not ready after SetReady")
	}
}

func TestRefreshSkipsMalformedRecords(t *testing.T) {
	renderer := &fakeRenderer{}
	rec := &fakeRecorder{}
	svc := readyService(renderer)
	svc.Metrics = rec

	svc.Refresh(context.Background(), []model.PeerRecord{
		peerAt("good", 10, 20),
		{Name: "nan-lat", Lat: math.NaN(), Lon: 20},
		{Name: "inf-lon", Lat: 10, Lon: math.Inf(1)},
		peerAt("good2", 30, 40),
	})

	if len(renderer.points) != 2 {
		t.Fatalf("published %d peers, want 2 valid ones", len(renderer.points))
	}
	if renderer.points[0].Name != "good" || renderer.points[1].Name != "good2" {
		t.Errorf("published names %q/%q, want good/good2", renderer.points[0].Name, renderer.points[1].Name)
	}
	if rec.malformed != 2 {
		t.Errorf("malformed counter = %d, want 2", rec.malformed)
	}
}

func TestRefreshAllMalformedIsSafeNoOp(t *testing.T) {
	renderer := &fakeRenderer{}
	rec := &fakeRecorder{}
	svc := readyService(renderer)
	svc.Metrics = rec

	svc.Refresh(context.Background(), []model.PeerRecord{
		{Name: "bad", Lat: math.NaN(), Lon: math.NaN()},
	})

	if renderer.publishCount != 0 {
		t.Errorf("publishCount = %d, want 0", renderer.publishCount)
	}
	if rec.empty != 1 || rec.malformed != 1 {
		t.Errorf("counters empty=%d malformed=%d, want 1/1", rec.empty, rec.malformed)
	}
}

func TestRefreshNeverMutatesCallerSnapshot(t *testing.T) {
	renderer := &fakeRenderer{}
	svc := readyService(renderer)

	snapshot := []model.PeerRecord{
		peerAt("a", 10, 20),
		peerAt("b", 10, 20),
	}
	original := make([]model.PeerRecord, len(snapshot))
	copy(original, snapshot)

	svc.Refresh(context.Background(), snapshot)

	if !reflect.DeepEqual(snapshot, original) {
		t.Errorf("caller snapshot mutated:\n got %+v\nwant %+v", snapshot, original)
	}
	// The coincident pair must still have been spread in the published copy.
	if renderer.points[0].Lat == renderer.points[1].Lat && renderer.points[0].Lon == renderer.points[1].Lon {
		t.Errorf("published peers still coincident: %+v", renderer.points)
	}
}

func TestRefreshReplacesDatasetWholesale(t *testing.T) {
	renderer := &fakeRenderer{}
	svc := readyService(renderer)

	svc.Refresh(context.Background(), []model.PeerRecord{peerAt("a", 1, 1), peerAt("b", 2, 2), peerAt("c", 3, 3)})
	svc.Refresh(context.Background(), []model.PeerRecord{peerAt("only", 5, 5)})

	if renderer.publishCount != 2 {
		t.Fatalf("publishCount = %d, want 2", renderer.publishCount)
	}
	if len(renderer.points) != 1 || renderer.points[0].Name != "only" {
		t.Errorf("second snapshot did not replace the first: %+v", renderer.points)
	}
	if len(renderer.arcs) != 0 {
		t.Errorf("single peer snapshot should publish no arcs, got %d", len(renderer.arcs))
	}
}
