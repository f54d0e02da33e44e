package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/signalsfoundry/peerglobe/internal/logging"
)

// Poller fetches the peers-info document from an HTTP endpoint on a fixed
// interval and delivers each decoded snapshot to the handler. Transport
// failures are logged and retried on the next tick; the poller never gives
// up on its own.
type Poller struct {
	URL      string
	APIKey   string
	Interval time.Duration
	Fallback Fallback

	// Client defaults to a client with a per-request timeout.
	Client *http.Client

	handler Handler
	log     logging.Logger
}

// NewPoller constructs a poller delivering snapshots to handler.
func NewPoller(url, apiKey string, interval time.Duration, handler Handler, log logging.Logger) *Poller {
	if log == nil {
		log = logging.Noop()
	}
	return &Poller{
		URL:      url,
		APIKey:   apiKey,
		Interval: interval,
		Fallback: DefaultFallback(),
		Client:   &http.Client{Timeout: 15 * time.Second},
		handler:  handler,
		log:      log,
	}
}

// Run polls immediately and then on every interval tick until the context is
// cancelled.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	p.poll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	data, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn(ctx, "feed poll failed", logging.Err(err), logging.String("url", p.URL))
		return
	}

	snapshot, err := DecodeSnapshot(data, p.Fallback)
	if err != nil {
		p.log.Warn(ctx, "feed payload rejected", logging.Err(err), logging.String("url", p.URL))
		return
	}

	p.log.Debug(ctx, "feed snapshot received", logging.Int("peers", len(snapshot)))
	p.handler(ctx, snapshot)
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if p.APIKey != "" {
		req.Header.Set("X-API-Key", p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
