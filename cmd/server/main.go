package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vigil-ops/vigil-backend-go/internal/api"
	"github.com/vigil-ops/vigil-backend-go/internal/collector"
	"github.com/vigil-ops/vigil-backend-go/internal/config"
	"github.com/vigil-ops/vigil-backend-go/internal/core/alerting"
	"github.com/vigil-ops/vigil-backend-go/internal/core/analytics"
	"github.com/vigil-ops/vigil-backend-go/internal/core/engine"
	"github.com/vigil-ops/vigil-backend-go/internal/websocket"
	"github.com/vigil-ops/vigil-backend-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	// Analytics sink: mirror recorded samples onto /metrics.
	var sink analytics.Sink
	promSink, err := analytics.NewPrometheusSink(prometheus.DefaultRegisterer, "vigil")
	if err != nil {
		log.WithError(err).Warn("Prometheus sink unavailable, analytics forwarding disabled")
		sink = analytics.NopSink{}
	} else {
		sink = promSink
	}

	// WebSocket hub streams alert transitions to dashboards.
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	sender := alerting.NewWebhookSender(cfg.Notifications.Webhooks, cfg.Notifications.WebhookTimeout, log)

	eng := engine.New(cfg, sender, wsHub, sink, log)
	if err := eng.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start alerting engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// System metrics producer (CPU/memory/disk/load).
	if cfg.Collectors.System.Enabled {
		sysCollector := collector.NewSystemCollector(eng.Store(), cfg.Collectors.System.Interval, log)
		if err := sysCollector.RegisterMetrics(); err != nil {
			log.WithError(err).Warn("Failed to register system metrics")
		} else {
			go sysCollector.Run(ctx)
		}
	}

	router := api.NewRouter(cfg, eng, log, wsHub)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	cancel()
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	log.Info("Server exited")
}
