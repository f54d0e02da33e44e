package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/signalsfoundry/peerglobe/internal/logging"
	"github.com/signalsfoundry/peerglobe/internal/observability"
)

// Server is the HTTP surface: the websocket dataset stream for browser
// renderers, health, metrics, and (optionally) the static frontend.
type Server struct {
	// StaticDir, when set, is served at the root path (the frontend bundle).
	StaticDir string

	renderer  *WebRenderer
	hub       *Hub
	collector *observability.Collector
	log       logging.Logger

	upgrader websocket.Upgrader
}

// New constructs the server around its collaborators.
func New(renderer *WebRenderer, hub *Hub, collector *observability.Collector, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		renderer:  renderer,
		hub:       hub,
		collector: collector,
		log:       log,
		upgrader: websocket.Upgrader{
			// The stream is a read-only cosmetic dataset; any origin may
			// render it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/globe", s.collector.Middleware("globe_stream", http.HandlerFunc(s.handleGlobeStream)))
	mux.Handle("/healthz", s.collector.Middleware("healthz", http.HandlerFunc(s.handleHealthz)))
	mux.Handle("/metrics", s.collector.Handler())
	if s.StaticDir != "" {
		mux.Handle("/", s.collector.Middleware("static", http.FileServer(http.Dir(s.StaticDir))))
	}
	return otelhttp.NewHandler(mux, "peerglobe-http")
}

// Serve accepts connections on ln until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleGlobeStream upgrades to a websocket and registers the client with
// the hub. The current dataset, if any, is replayed immediately so a late
// joiner does not wait for the next feed delivery.
func (s *Server) handleGlobeStream(w http.ResponseWriter, r *http.Request) {
	ctx, log := logging.WithRequestLogger(r.Context(), s.log)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}

	s.hub.Register(context.WithoutCancel(ctx), conn, s.renderer.Snapshot())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
