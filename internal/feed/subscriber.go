package feed

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/peerglobe/internal/logging"
)

const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
)

// Subscriber maintains a websocket connection to an upstream snapshot feed.
// Each text message is one complete JSON snapshot. Dropped connections are
// redialed with exponential backoff.
type Subscriber struct {
	URL      string
	Fallback Fallback

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	handler Handler
	log     logging.Logger
}

// NewSubscriber constructs a subscriber delivering snapshots to handler.
func NewSubscriber(url string, handler Handler, log logging.Logger) *Subscriber {
	if log == nil {
		log = logging.Noop()
	}
	return &Subscriber{
		URL:      url,
		Fallback: DefaultFallback(),
		Dialer:   websocket.DefaultDialer,
		handler:  handler,
		log:      log,
	}
}

// Run dials and reads until the context is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	delay := reconnectMinDelay

	for {
		conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn(ctx, "feed dial failed; will retry",
				logging.Err(err),
				logging.String("url", s.URL),
				logging.Duration("retry_in", delay),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			if delay *= 2; delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		s.log.Info(ctx, "feed connected", logging.String("url", s.URL))
		delay = reconnectMinDelay
		s.readLoop(ctx, conn)

		if ctx.Err() != nil {
			return nil
		}
	}
}

// readLoop consumes messages until the connection breaks or the context is
// cancelled. Closing the connection on cancellation unblocks ReadMessage.
func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn(ctx, "feed connection lost", logging.Err(err))
			}
			return
		}

		snapshot, err := DecodeSnapshot(data, s.Fallback)
		if err != nil {
			s.log.Warn(ctx, "feed payload rejected", logging.Err(err))
			continue
		}

		s.log.Debug(ctx, "feed snapshot received", logging.Int("peers", len(snapshot)))
		s.handler(ctx, snapshot)
	}
}
