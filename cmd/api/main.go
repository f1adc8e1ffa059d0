package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/wlockwood/lits/internal/api"
	"github.com/wlockwood/lits/internal/api/handlers"
	"github.com/wlockwood/lits/internal/api/ws"
	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/observability"
	"github.com/wlockwood/lits/internal/queue"
	"github.com/wlockwood/lits/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting LITS API service", "port", cfg.Server.Port, "driver", cfg.Database.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the store
	store, err := storage.Open(ctx, cfg.Database, cfg.Logging.Level == "debug")
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	checks := map[string]handlers.Check{}

	// Connect to MinIO
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		checks["minio"] = minioStore.Ping
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}
	checks["nats"] = func(context.Context) error { return producer.Ping() }

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Start match consumer to broadcast events via WebSocket
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create match consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeMatches(ctx, "api-matches", func(ctx context.Context, msg jetstream.Msg) error {
		ev, err := queue.DecodeMatchEvent(msg.Data())
		if err != nil {
			slog.Error("decode match event", "subject", msg.Subject(), "error", err)
			return nil
		}
		hub.BroadcastMatch(ev)
		return nil
	})
	if err != nil {
		slog.Warn("start match consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey: cfg.Server.APIKey,
		Store:  store,
		Checks: checks,
		Hub:    hub,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
