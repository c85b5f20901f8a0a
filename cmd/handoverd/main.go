// Command handoverd runs a handover Controller behind an HTTP hook surface.
//
// The lite variant (or its host page) reports progress through the /hooks
// endpoints, the full variant is served through a caching reverse proxy on
// /full/, and the controller's state and metrics are exposed on /state and
// /metrics.
//
// Usage:
//
//	handoverd [-settings handoverd.yaml]
//
// Every setting can be overridden by a HANDOVER_* environment variable, e.g.
// HANDOVER_STORE=nats HANDOVER_NATS_URL=nats://127.0.0.1:4222.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/arloliu/handover"
	"github.com/arloliu/handover/cache"
	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/internal/metrics"
	"github.com/arloliu/handover/store"
)

func main() {
	settingsPath := flag.String("settings", "", "optional daemon settings file (yaml, json or toml)")
	flag.Parse()

	if err := run(*settingsPath); err != nil {
		fmt.Fprintf(os.Stderr, "handoverd: %v\n", err)
		os.Exit(1)
	}
}

func run(settingsPath string) error {
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return err
	}

	logger := logging.NewSlogWriter(os.Stderr, settings.LogFormat, settings.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := handover.LoadConfig(settings.Config)
	if err != nil {
		return err
	}
	settings.Apply(&cfg)

	var nc *nats.Conn
	if settings.NATSURL != "" {
		nc, err = nats.Connect(settings.NATSURL, nats.Name("handoverd"))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer nc.Close()
	}

	backend, closeStore, err := openStore(ctx, settings, nc)
	if err != nil {
		return err
	}
	defer closeStore()

	cacheBackend, err := openCache(settings, nc)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := &http.Client{Timeout: cfg.Prefetch.RequestTimeout}
	boot := newURLBootstrapper(client, logger)
	presenter := newLogPresenter(logger, nc, settings.Subject)
	env := newHostEnvironment()

	ctrl, err := handover.NewController(&cfg, boot, presenter,
		handover.WithStore(backend),
		handover.WithCacheBackend(cacheBackend),
		handover.WithHTTPClient(client),
		handover.WithEnvironment(env),
		handover.WithLogger(logger),
		handover.WithMetrics(metrics.NewPrometheus(registry, "handover")),
	)
	if err != nil {
		presenter.ShowFallback(ctx, cfg.FallbackMessage)
		return err
	}
	boot.full = ctrl.Transport()

	if nc != nil {
		sub, err := ctrl.SubscribeMessages(nc, settings.Subject)
		if err != nil {
			return err
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	if err := ctrl.Start(ctx); err != nil {
		presenter.ShowFallback(ctx, cfg.FallbackMessage)
		return err
	}

	srv := &server{
		ctrl:      ctrl,
		boot:      boot,
		presenter: presenter,
		env:       env,
		gatherer:  registry,
		logger:    logger,
	}
	handler, err := srv.routes()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              settings.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", settings.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := ctrl.Stop(shutdownCtx); err != nil {
		logger.Warn("controller shutdown", "error", err)
	}

	return nil
}

func openStore(ctx context.Context, s Settings, nc *nats.Conn) (store.Backend, func(), error) {
	switch s.Store {
	case "sqlite":
		db, err := store.OpenSQLite(ctx, s.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		return db, func() { _ = db.Close() }, nil
	case "nats":
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, nil, fmt.Errorf("init JetStream: %w", err)
		}
		kv, err := store.OpenNATS(ctx, js, s.NATSBucket)
		if err != nil {
			return nil, nil, err
		}

		return kv, func() {}, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

func openCache(s Settings, nc *nats.Conn) (cache.Backend, error) {
	if s.Cache != "nats" {
		return cache.NewMemory(), nil
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("init JetStream: %w", err)
	}

	return cache.NewObjectStore(js), nil
}
