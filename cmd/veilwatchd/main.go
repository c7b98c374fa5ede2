// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package main is the entry point for the veilwatchd service.
//
// Veilwatchd watches the local machine for overlay monitoring software,
// the kind that hides its windows from screen capture while observing
// the user. It polls a native detection engine, classifies what it
// finds, and exposes the results over a REST API, a WebSocket feed,
// Prometheus metrics, and an optional outbound webhook.
//
// # Application Architecture
//
// Startup proceeds in the following order:
//
//  1. Configuration: load settings from defaults, config.yaml, and
//     environment variables (Koanf v2)
//  2. Logging: initialize zerolog with the configured level and format
//  3. Signal source: load the native detection engine library, or an
//     in-process static source when ENGINE_MODE=static
//  4. Monitor: build the polling monitor with webhook and WebSocket
//     callbacks attached
//  5. Supervisor tree: run the monitor loop, WebSocket hub, and HTTP
//     server under suture supervision
//
// # Configuration
//
// Configuration is layered, highest priority first:
//   - Environment variables (ENGINE_MODE, MONITOR_INTERVAL, HTTP_PORT, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The service shuts down gracefully on SIGINT and SIGTERM: the monitor
// loop is joined, WebSocket clients are closed, and the HTTP server
// drains in-flight requests.
//
// # Example Usage
//
// Development without the native engine:
//
//	export ENGINE_MODE=static
//	./veilwatchd
//
// Production with the native engine and a webhook:
//
//	export ENGINE_LIBRARY_PATH=/usr/local/lib/libveilwatch.dylib
//	export WEBHOOK_ENABLED=true
//	export WEBHOOK_URL=https://alerts.example.com/hook
//	./veilwatchd
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/veilwatch/veilwatch/internal/api"
	"github.com/veilwatch/veilwatch/internal/config"
	"github.com/veilwatch/veilwatch/internal/detect"
	"github.com/veilwatch/veilwatch/internal/logging"
	"github.com/veilwatch/veilwatch/internal/monitor"
	"github.com/veilwatch/veilwatch/internal/notify"
	sig "github.com/veilwatch/veilwatch/internal/signal"
	"github.com/veilwatch/veilwatch/internal/supervisor"
	"github.com/veilwatch/veilwatch/internal/supervisor/services"
	ws "github.com/veilwatch/veilwatch/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("engine_mode", cfg.Engine.Mode).
		Dur("poll_interval", cfg.Monitor.Interval).
		Bool("webhook_enabled", cfg.Webhook.Enabled).
		Msg("Starting veilwatchd")

	source, err := newSignalSource(cfg)
	if err != nil {
		logging.Fatal().Err(err).Str("library_path", cfg.Engine.LibraryPath).Msg("Failed to initialize signal source")
	}

	detector := detect.NewDetector(source)
	mon := monitor.New(detector, monitor.WithStopTimeout(cfg.Monitor.StopTimeout))
	hub := ws.NewHub()
	notifier := notify.NewWebhookNotifier(cfg.Webhook)

	// Monitor callbacks fan out to WebSocket clients and the webhook.
	callbacks := mergeCallbacks(hub.Callbacks(), notifier.Callbacks())

	handler := api.NewHandler(detector, mon, hub, callbacks)
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog.
	slogLogger := slog.New(logging.NewSlogHandler())

	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())
	tree.AddEngineService(services.NewWebSocketHubService(hub))
	if cfg.Monitor.StartOnBoot {
		tree.AddEngineService(services.NewMonitorService(mon, cfg.Monitor.Interval, callbacks))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))

	errCh := tree.ServeBackground(ctx)
	logging.Info().Str("addr", server.Addr).Msg("veilwatchd is up")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigCh:
		logging.Info().Str("signal", s.String()).Msg("Shutdown signal received")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree failed")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("veilwatchd stopped")
}

// newSignalSource builds the configured signal source. Static mode reports
// a clean signal until mutated, which is enough for API development and
// integration testing without the native engine.
func newSignalSource(cfg *config.Config) (sig.Source, error) {
	if cfg.Engine.Mode == "static" {
		logging.Warn().Msg("Using static signal source; no real detection will occur")
		return sig.NewStaticSource(sig.RawSignal{}), nil
	}
	return sig.NewNativeSource(cfg.Engine.LibraryPath)
}

// mergeCallbacks composes callback sets so each event reaches every
// consumer.
func mergeCallbacks(sets ...monitor.Callbacks) monitor.Callbacks {
	return monitor.Callbacks{
		OnDetected: func(snap detect.Snapshot) {
			for _, set := range sets {
				if set.OnDetected != nil {
					set.OnDetected(snap)
				}
			}
		},
		OnRemoved: func() {
			for _, set := range sets {
				if set.OnRemoved != nil {
					set.OnRemoved()
				}
			}
		},
		OnChange: func(snap detect.Snapshot) {
			for _, set := range sets {
				if set.OnChange != nil {
					set.OnChange(snap)
				}
			}
		},
	}
}
