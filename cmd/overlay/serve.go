package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/storm-radar-overlay/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-radar-overlay/internal/adapter/kafka"
	"github.com/couchcryptid/storm-radar-overlay/internal/adapter/tilemap"
	"github.com/couchcryptid/storm-radar-overlay/internal/config"
	"github.com/couchcryptid/storm-radar-overlay/internal/events"
	"github.com/couchcryptid/storm-radar-overlay/internal/fetch"
	"github.com/couchcryptid/storm-radar-overlay/internal/observability"
	"github.com/couchcryptid/storm-radar-overlay/internal/radar"
	"github.com/couchcryptid/storm-radar-overlay/internal/warnings"
)

func newServeCmd() *cobra.Command {
	var noAutoload bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the radar engine and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cmd.Context(), cfg, !noAutoload)
		},
	}
	cmd.Flags().BoolVar(&noAutoload, "no-autoload", false, "Wait for POST /api/load instead of loading frames at startup")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, autoload bool) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := openCache(cfg, clock, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}()

	dispatcher := fetch.NewDispatcher(mgr, fetch.Options{
		Timeout:       cfg.FetchTimeout,
		UserAgent:     cfg.UserAgent,
		HazardFeedURL: cfg.HazardFeedURL,
		Clock:         clock,
	}, logger, metrics)

	bus := events.NewBus(clock, logger, metrics)
	feed := warnings.NewFeedClient(dispatcher, cfg.HazardFeedURL, logger, metrics)
	indexer := warnings.NewIndexer(logger, metrics)

	radarMap := tilemap.New(ctx, dispatcher, tilemap.Options{
		WMSURL:   cfg.RadarWMSURL,
		Layer:    cfg.RadarLayer,
		Format:   cfg.RadarImageFormat,
		Viewport: cfg.Viewport,
		TimeStep: cfg.RadarTimeStep,
	}, logger)

	engine := radar.NewEngine(radar.Options{
		FrameCount:         cfg.FrameCount,
		FrameInterval:      cfg.FrameInterval,
		PlaybackInterval:   cfg.PlaybackInterval,
		TransitionDuration: cfg.TransitionDuration,
		RedrawInterval:     cfg.RedrawInterval,
		VisibleOpacity:     cfg.VisibleOpacity,
		Viewport:           cfg.Viewport,
	}, radarMap, feed, indexer, bus, clock, logger, metrics)
	radarMap.OnLoaded(func(l *tilemap.Layer) { engine.LayerLoaded(l) })

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Engine:     engine,
		Layers:     radarMap,
		Cache:      mgr,
		Events:     bus,
		Proxy:      dispatcher,
		ProxyHosts: proxyHosts(cfg),
		Clock:      clock,
	}, logger)

	var wg sync.WaitGroup

	// Start HTTP server.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start radar engine.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			logger.Error("radar engine error", "error", err)
		}
	}()

	// Start Kafka notification sink (feature-flagged via KAFKA_ENABLED).
	var writer interface{ Close() error }
	if cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(cfg)
		writer = w
		sink := kafkaadapter.NewSink(w, cfg, clock, logger, metrics)
		notifications := bus.Subscribe("kafka")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Run(ctx, notifications); err != nil {
				logger.Error("notification sink error", "error", err)
			}
		}()
		logger.Info("kafka notifications enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka notifications disabled")
	}

	if len(cfg.StaticManifest) > 0 {
		go func() {
			n := dispatcher.Precache(ctx, cfg.StaticManifest)
			logger.Info("static assets precached", "cached", n, "manifest", len(cfg.StaticManifest))
		}()
	}

	if autoload {
		if err := engine.Load(ctx); err != nil {
			logger.Error("initial radar load failed", "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), cfg.ShutdownTimeout)
	defer cancel()

	// Closing the bus ends open event streams so the server can drain.
	bus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	radarMap.Wait()

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// proxyHosts is the /proxy allow list: the radar and feed hosts, every
// static manifest host and the configured extras.
func proxyHosts(cfg *config.Config) []string {
	seen := make(map[string]struct{})
	var hosts []string
	add := func(h string) {
		if _, ok := seen[h]; h == "" || ok {
			return
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}

	urls := append([]string{cfg.RadarWMSURL, cfg.HazardFeedURL}, cfg.StaticManifest...)
	for _, raw := range urls {
		if u, err := url.Parse(raw); err == nil {
			add(u.Hostname())
		}
	}
	for _, h := range cfg.ProxyAllowedHosts {
		add(h)
	}
	return hosts
}
