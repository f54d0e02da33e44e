package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/peerglobe/model"
)

func TestSubscriberDeliversSnapshots(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		payload := `[{"name": "peer_1", "lat": 1, "lon": 2, "elevation": 10000}]`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	capture := newCaptureHandler()
	sub := NewSubscriber(wsURL, capture.handle, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()

	select {
	case <-capture.delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for websocket snapshot")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop after cancellation")
	}

	snapshot := capture.last()
	if len(snapshot) != 1 || snapshot[0].Name != "peer_1" {
		t.Errorf("snapshot = %+v, want single peer_1 record", snapshot)
	}
}

func TestSubscriberStopsWhenContextCancelledDuringDial(t *testing.T) {
	sub := NewSubscriber("ws://127.0.0.1:1/nope", func(context.Context, []model.PeerRecord) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop for cancelled context")
	}
}
