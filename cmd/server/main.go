package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wzin/concord/internal/config"
	"github.com/wzin/concord/internal/logging"
	"github.com/wzin/concord/internal/metrics"
	"github.com/wzin/concord/internal/room"
	"github.com/wzin/concord/internal/server"
	"github.com/wzin/concord/internal/signaling"
	"github.com/wzin/concord/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("info", "text").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting signaling server",
		"version", version.Version,
		"addr", cfg.ListenAddr(),
		"metrics", cfg.Metrics.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	registry := room.NewRegistry()
	hub := signaling.NewHub(registry, logger, m)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: server.Routes(hub, cfg, logger),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
