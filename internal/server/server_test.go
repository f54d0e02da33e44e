package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/peerglobe/internal/observability"
	"github.com/signalsfoundry/peerglobe/model"
)

func newTestServer(t *testing.T) (*Server, *WebRenderer, *Hub) {
	t.Helper()

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	hub := NewHub(nil)
	renderer := NewWebRenderer(hub)
	return New(renderer, hub, collector, nil), renderer, hub
}

func publishTestDataset(r *WebRenderer, names ...string) {
	peers := make([]model.PeerRecord, len(names))
	for i, name := range names {
		peers[i] = model.PeerRecord{Name: name, Lat: float64(i), Lon: float64(-i), Elevation: 10000}
	}
	r.SetPoints(peers)
	r.SetLabels(peers)
	r.SetArcs([]model.ArcEdge{{StartLat: 0, StartLng: 0, EndLat: 1, EndLng: -1, Color: model.DefaultArcColor}})
}

func dialGlobeStream(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/globe"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func readDataset(t *testing.T, conn *websocket.Conn) model.Dataset {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	var dataset model.Dataset
	if err := json.Unmarshal(payload, &dataset); err != nil {
		t.Fatalf("unmarshal dataset: %v", err)
	}
	return dataset
}

func TestGlobeStreamReplaysCurrentDatasetOnConnect(t *testing.T) {
	srv, renderer, _ := newTestServer(t)
	publishTestDataset(renderer, "peer_1", "peer_2")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialGlobeStream(t, ts.URL)
	defer conn.Close()

	dataset := readDataset(t, conn)
	if len(dataset.Points) != 2 {
		t.Errorf("replayed dataset has %d points, want 2", len(dataset.Points))
	}
	if len(dataset.Arcs) != 1 {
		t.Errorf("replayed dataset has %d arcs, want 1", len(dataset.Arcs))
	}
}

func TestGlobeStreamReceivesBroadcastsOnPublish(t *testing.T) {
	srv, renderer, hub := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialGlobeStream(t, ts.URL)
	defer conn.Close()

	// Wait until the hub has adopted the client before publishing.
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	publishTestDataset(renderer, "peer_1", "peer_2", "peer_3")

	dataset := readDataset(t, conn)
	if len(dataset.Points) != 3 {
		t.Errorf("broadcast dataset has %d points, want 3", len(dataset.Points))
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "ok") {
		t.Errorf("/healthz body = %q", body)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	srv, renderer, _ := newTestServer(t)
	publishTestDataset(renderer, "peer_1")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
}
