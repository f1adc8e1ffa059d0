package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/ingest"
	"github.com/wlockwood/lits/internal/metadata"
	"github.com/wlockwood/lits/internal/queue"
	"github.com/wlockwood/lits/internal/source"
	"github.com/wlockwood/lits/internal/storage"
	"github.com/wlockwood/lits/internal/vision"
)

// app holds everything an ingesting command needs. close releases it in
// reverse order of acquisition.
type app struct {
	store       storage.Store
	objects     *storage.MinIOStore
	coordinator *ingest.Coordinator
	closers     []func()
}

type appOptions struct {
	// publish sends match events to NATS for the API's live feed.
	publish bool
}

func openStore(ctx context.Context) (storage.Store, error) {
	store, err := storage.Open(ctx, cfg.Database, cfg.Logging.Level == "debug")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("store opened", "driver", cfg.Database.Driver)
	return store, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	var objects metadata.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		m, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		a.objects = m
		objects = m
	}

	var producer *queue.Producer
	if opts.publish || cfg.Tagging.Mode == config.TaggingQueue {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		a.closers = append(a.closers, producer.Close)
		if err := producer.EnsureStreams(ctx); err != nil {
			return nil, err
		}
	}

	var publisher ingest.TagPublisher
	if producer != nil {
		publisher = producer
	}
	tagger, err := ingest.NewTagger(cfg.Tagging.Mode, metadata.NewSidecarWriter(objects), publisher)
	if err != nil {
		return nil, err
	}

	if err := vision.InitRuntime(""); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, vision.ShutdownRuntime)

	extractor, err := vision.NewExtractor(cfg.Extraction)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, extractor.Close)

	var notifier ingest.Notifier
	if opts.publish {
		notifier = producer
	}

	a.coordinator = ingest.NewCoordinator(store, extractor, tagger, notifier, ingest.OptionsFrom(cfg))
	ok = true
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// candidates lists the photos under dir, or under the configured bucket
// prefix when fromBucket is set.
func (a *app) candidates(ctx context.Context, dir string, fromBucket bool) ([]source.Candidate, error) {
	var src source.Source
	switch {
	case fromBucket:
		if a.objects == nil {
			return nil, fmt.Errorf("bucket scan needs minio.endpoint")
		}
		src = source.NewBucket(a.objects, cfg.Scan.BucketPrefix, cfg.Scan.Extensions)
	case dir == "":
		return nil, fmt.Errorf("no directory to scan")
	default:
		src = source.NewDir(dir, cfg.Scan.Extensions)
	}
	return src.Candidates(ctx)
}

func newProgressBar(count int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func barProgress(bar *progressbar.ProgressBar) ingest.Progress {
	return func(source.Candidate, *ingest.Result, error) {
		_ = bar.Add(1)
	}
}
