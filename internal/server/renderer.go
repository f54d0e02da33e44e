package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/signalsfoundry/peerglobe/model"
)

// WebRenderer is the renderer surface published to by the refresh service
// and streamed to browsers by the hub. A refresh cycle calls SetPoints,
// SetLabels, and SetArcs in that order; the first two stage data and SetArcs
// commits the whole dataset in one swap, so connected clients never observe
// a half-updated cycle.
type WebRenderer struct {
	mu      sync.Mutex
	points  []model.PeerRecord
	labels  []model.PeerRecord
	dataset model.Dataset
	hasData bool

	hub *Hub
}

// NewWebRenderer constructs a renderer that broadcasts committed datasets
// through hub. A nil hub is allowed; the renderer then only serves Dataset
// and Snapshot reads.
func NewWebRenderer(hub *Hub) *WebRenderer {
	return &WebRenderer{hub: hub}
}

// SetPoints stages the point list for the current refresh cycle.
func (r *WebRenderer) SetPoints(points []model.PeerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = points
}

// SetLabels stages the label list for the current refresh cycle.
func (r *WebRenderer) SetLabels(labels []model.PeerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = labels
}

// SetArcs completes the refresh cycle: the staged points and labels plus the
// given arcs become the published dataset, replacing the previous one
// wholesale, and the result is broadcast to all connected renderers.
func (r *WebRenderer) SetArcs(arcs []model.ArcEdge) {
	r.mu.Lock()
	r.dataset = model.Dataset{
		Points:    r.points,
		Labels:    r.labels,
		Arcs:      arcs,
		UpdatedAt: time.Now().UTC(),
	}
	r.hasData = true
	payload, err := json.Marshal(r.dataset)
	hub := r.hub
	r.mu.Unlock()

	if err != nil || hub == nil {
		return
	}
	hub.Broadcast(payload)
}

// Dataset returns the currently published dataset and whether one exists.
func (r *WebRenderer) Dataset() (model.Dataset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataset, r.hasData
}

// Snapshot returns the published dataset marshaled for a newly connected
// client, or nil when nothing has been published yet.
func (r *WebRenderer) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasData {
		return nil
	}
	payload, err := json.Marshal(r.dataset)
	if err != nil {
		return nil
	}
	return payload
}
