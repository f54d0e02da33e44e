package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/signalsfoundry/peerglobe/core"
	"github.com/signalsfoundry/peerglobe/internal/config"
	"github.com/signalsfoundry/peerglobe/internal/feed"
	"github.com/signalsfoundry/peerglobe/internal/logging"
	"github.com/signalsfoundry/peerglobe/internal/observability"
	"github.com/signalsfoundry/peerglobe/internal/server"
	"github.com/signalsfoundry/peerglobe/internal/store"
	"github.com/signalsfoundry/peerglobe/model"
)

// run wires the daemon together and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	hub := server.NewHub(log)
	renderer := server.NewWebRenderer(hub)

	svc := core.NewRefreshService(renderer, log)
	svc.SpreadRadiusDeg = cfg.Spread.RadiusDeg
	svc.ArcColor = cfg.Arcs.Color
	svc.Metrics = collector

	var cache *store.SnapshotStore
	if cfg.Cache.Path != "" {
		cache, err = store.Open(cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("open snapshot cache: %w", err)
		}
		defer cache.Close()

		// Seed the first refresh from the cached snapshot so a restart shows
		// data before the feed delivers. The renderer is not ready yet, so
		// this lands in the buffered slot and is applied below.
		if cached, savedAt, err := cache.Load(ctx); err == nil {
			log.Info(ctx, "seeding refresh from cached snapshot",
				logging.Int("peers", len(cached)),
				logging.String("saved_at", savedAt.String()),
			)
			svc.Refresh(ctx, cached)
		} else if !errors.Is(err, store.ErrNoSnapshot) {
			log.Warn(ctx, "cached snapshot unavailable", logging.Err(err))
		}
	}

	handler := func(ctx context.Context, snapshot []model.PeerRecord) {
		svc.Refresh(ctx, snapshot)
		if cache != nil && len(snapshot) > 0 {
			if err := cache.Save(ctx, snapshot); err != nil {
				log.Warn(ctx, "snapshot cache write failed", logging.Err(err))
			}
		}
	}

	source, err := feedSource(cfg.Feed, handler, log)
	if err != nil {
		return err
	}

	srv := server.New(renderer, hub, collector, log)
	srv.StaticDir = cfg.Server.StaticDir

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Listen, err)
	}
	log.Info(ctx, "peerglobe listening",
		logging.String("addr", ln.Addr().String()),
		logging.String("feed_mode", cfg.Feed.Mode),
	)

	// The renderer is serving; flush any buffered snapshot and let the feed
	// publish directly from here on.
	svc.SetReady(ctx)

	if source != nil {
		go func() {
			if err := source.Run(ctx); err != nil {
				log.Error(ctx, "feed stopped", logging.Err(err))
			}
		}()
	}

	return srv.Serve(ctx, ln)
}

// feedSource selects the upstream transport for the configured mode.
func feedSource(cfg config.FeedConfig, handler feed.Handler, log logging.Logger) (feed.Source, error) {
	fallback := feed.Fallback{
		Lat:       cfg.FallbackLat,
		Lon:       cfg.FallbackLon,
		Elevation: cfg.FallbackElevation,
	}

	switch cfg.Mode {
	case config.FeedModePoll:
		poller := feed.NewPoller(cfg.URL, cfg.APIKey, cfg.Interval.Std(), handler, log)
		poller.Fallback = fallback
		return poller, nil
	case config.FeedModeWebsocket:
		sub := feed.NewSubscriber(cfg.URL, handler, log)
		sub.Fallback = fallback
		return sub, nil
	case config.FeedModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown feed mode %q", cfg.Mode)
	}
}
