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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/metadata"
	"github.com/wlockwood/lits/internal/observability"
	"github.com/wlockwood/lits/internal/queue"
	"github.com/wlockwood/lits/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	workers := flag.Int("workers", 2, "number of concurrent sidecar writers")
	metricsAddr := flag.String("metrics-addr", ":8082", "address of the metrics endpoint")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting LITS tagger", "workers", *workers)

	// Sidecars of bucket images go back to the bucket
	var objects metadata.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		objects = minioStore
	}
	writer := metadata.NewSidecarWriter(objects)

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Error("ensure nats streams", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeTagRequests(ctx, "tagger", func(ctx context.Context, msg jetstream.Msg) error {
		req, err := queue.DecodeTagRequest(msg.Data())
		if err != nil {
			slog.Error("decode tag request", "subject", msg.Subject(), "error", err)
			observability.TagRequests.WithLabelValues("invalid").Inc()
			return nil // Don't retry malformed requests
		}

		added, err := writer.Append(ctx, req.Path, req.Names)
		if err != nil {
			observability.TagRequests.WithLabelValues("error").Inc()
			return fmt.Errorf("tag %s: %w", req.Path, err)
		}
		observability.TagRequests.WithLabelValues("ok").Inc()
		slog.Info("keywords written", "path", req.Path, "image_id", req.ImageID, "added", added)
		return nil
	}, *workers)
	if err != nil {
		slog.Error("start tag consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := producer.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"nats down"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("tagger metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.PendingTags(ctx)
				if err == nil {
					observability.TagQueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down tagger...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("tagger stopped")
}
