// Package ingest drives one scan: it makes sure every candidate image is
// stored with its face encodings, matches those encodings against the
// known people and persists the resulting person links.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/wlockwood/lits/internal/config"
	"github.com/wlockwood/lits/internal/match"
	"github.com/wlockwood/lits/internal/metadata"
	"github.com/wlockwood/lits/internal/models"
	"github.com/wlockwood/lits/internal/observability"
	"github.com/wlockwood/lits/internal/source"
	"github.com/wlockwood/lits/internal/storage"
)

var (
	// ErrExtractionFailure means the image could not be decoded or the
	// extractor rejected it.
	ErrExtractionFailure = errors.New("extraction failed")

	// ErrExtractionTimeout means the extractor did not answer in time.
	ErrExtractionTimeout = errors.New("extraction timed out")

	// ErrTagging means links were persisted but keywords were not written.
	ErrTagging = errors.New("tagging failed")
)

// Extractor returns one encoding vector per face found in img.
type Extractor interface {
	Extract(ctx context.Context, img image.Image, jitter int, quality string) ([][]float32, error)
}

// Tagger writes matched person names into an image's metadata.
type Tagger interface {
	Tag(ctx context.Context, req models.TagRequest) error
}

// Notifier announces persisted matches.
type Notifier interface {
	PublishMatch(ctx context.Context, ev models.MatchEvent) error
}

type Options struct {
	Tolerance float64
	Jitter    int
	Model     string
	Timeout   time.Duration
}

func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Tolerance: cfg.Matching.Tolerance,
		Jitter:    cfg.Matching.Jitter,
		Model:     cfg.Matching.Model,
		Timeout:   cfg.Extraction.Timeout,
	}
}

// Result describes what happened to one image. Path is where the file was
// found on this run, which may differ from the stored path.
type Result struct {
	Image   *models.Image
	Path    string
	Reused  bool
	Faces   int
	Matches []match.Match
}

// Coordinator processes candidates one at a time against a single store.
type Coordinator struct {
	store     storage.Store
	extractor Extractor
	tagger    Tagger
	notifier  Notifier
	opts      Options
}

// NewCoordinator builds a coordinator. tagger and notifier may be nil.
func NewCoordinator(store storage.Store, extractor Extractor, tagger Tagger, notifier Notifier, opts Options) *Coordinator {
	if opts.Tolerance <= 0 {
		opts.Tolerance = match.DefaultTolerance
	}
	if opts.Jitter < 1 {
		opts.Jitter = 1
	}
	if opts.Model == "" {
		opts.Model = "large"
	}
	return &Coordinator{
		store:     store,
		extractor: extractor,
		tagger:    tagger,
		notifier:  notifier,
		opts:      opts,
	}
}

// Ingest stores one candidate if it is new, then matches its encodings
// against the people currently in the store and links the winners.
// Links are persisted before the tagger runs; a tagging error is returned
// together with the result.
func (c *Coordinator) Ingest(ctx context.Context, cand source.Candidate) (*Result, error) {
	res, encs, err := c.ensureImage(ctx, cand)
	if err != nil {
		return nil, err
	}
	if len(encs) == 0 {
		return res, nil
	}

	// The roster changes as earlier images gain links, so it is read fresh.
	people, err := c.store.AllPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	if len(people) == 0 {
		return res, nil
	}

	matches, err := match.Best(people, encs, c.opts.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", cand.Path, err)
	}
	for _, m := range matches {
		if _, err := c.store.LinkEncoding(ctx, m.Encoding.ID, m.Person.ID, models.AssociatePerson); err != nil {
			return nil, fmt.Errorf("link %s to %s: %w", cand.Path, m.Person.Name, err)
		}
		slog.Debug("face matched", "path", cand.Path, "person", m.Person.Name, "distance", m.Distance)
	}
	observability.MatchesLinked.Add(float64(len(matches)))
	res.Matches = matches

	if len(matches) == 0 {
		return res, nil
	}
	c.notify(ctx, res)
	if err := c.tag(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// ensureImage returns the stored image for cand and its encodings in face
// order, extracting and inserting it on first sight.
func (c *Coordinator) ensureImage(ctx context.Context, cand source.Candidate) (*Result, []models.Encoding, error) {
	id, err := c.store.FindImage(ctx, cand.Identity())
	switch {
	case err == nil:
		img, err := c.store.GetImage(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load image %s: %w", cand.Path, err)
		}
		encs, err := c.store.EncodingsForImage(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load encodings %s: %w", cand.Path, err)
		}
		c.refreshExposure(ctx, cand, img)
		slog.Debug("image already stored", "path", cand.Path, "image_id", id, "faces", len(encs))
		observability.ImagesTotal.WithLabelValues("reused").Inc()
		return &Result{Image: img, Path: cand.Path, Reused: true, Faces: len(encs)}, encs, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, nil, fmt.Errorf("find image %s: %w", cand.Path, err)
	}

	data, err := readAll(ctx, cand)
	if err != nil {
		return nil, nil, err
	}
	vectors, err := c.extract(ctx, cand.Path, data)
	if err != nil {
		return nil, nil, err
	}

	img := cand.Image()
	img.Exposure = readExposure(cand.Path, data)
	id, err = c.store.AddImage(ctx, img, vectors)
	if err != nil {
		return nil, nil, fmt.Errorf("add image %s: %w", cand.Path, err)
	}
	img.ID = id

	// AddImage keeps the first writer's encodings for an identity key.
	encs, err := c.store.EncodingsForImage(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load encodings %s: %w", cand.Path, err)
	}
	slog.Debug("image added", "path", cand.Path, "image_id", id, "faces", len(encs))
	observability.ImagesTotal.WithLabelValues("new").Inc()
	observability.FacesExtracted.Add(float64(len(vectors)))
	return &Result{Image: img, Path: cand.Path, Faces: len(encs)}, encs, nil
}

// extract decodes data and runs the extractor under the configured timeout.
func (c *Coordinator) extract(ctx context.Context, path string, data []byte) ([][]float32, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrExtractionFailure, path, err)
	}

	extractCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	type outcome struct {
		vectors [][]float32
		err     error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		vectors, err := c.extractor.Extract(extractCtx, img, c.opts.Jitter, c.opts.Model)
		done <- outcome{vectors, err}
	}()

	select {
	case out := <-done:
		observability.InferenceDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
		if out.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(extractCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s after %s", ErrExtractionTimeout, path, c.opts.Timeout)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailure, path, out.err)
		}
		return out.vectors, nil
	case <-extractCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrExtractionTimeout, path, c.opts.Timeout)
	}
}

// refreshExposure fills in exposure fields for images stored before they
// could be read.
func (c *Coordinator) refreshExposure(ctx context.Context, cand source.Candidate, img *models.Image) {
	if !img.Exposure.Empty() {
		return
	}
	rc, err := cand.Open(ctx)
	if err != nil {
		slog.Debug("open for exposure", "path", cand.Path, "error", err)
		return
	}
	defer rc.Close()

	exp, err := metadata.ReadExposure(rc)
	if err != nil || exp.Empty() {
		return
	}
	if err := c.store.UpdateImageExposure(ctx, img.ID, exp); err != nil {
		slog.Warn("update exposure", "path", cand.Path, "image_id", img.ID, "error", err)
		return
	}
	img.Exposure = exp
}

func (c *Coordinator) tag(ctx context.Context, res *Result) error {
	if c.tagger == nil {
		return nil
	}
	req := models.TagRequest{ImageID: res.Image.ID, Path: res.Path, Names: matchedNames(res.Matches)}
	if err := c.tagger.Tag(ctx, req); err != nil {
		observability.TagRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %s: %v", ErrTagging, res.Path, err)
	}
	observability.TagRequests.WithLabelValues("ok").Inc()
	return nil
}

func (c *Coordinator) notify(ctx context.Context, res *Result) {
	if c.notifier == nil {
		return
	}
	ev := models.MatchEvent{
		ImageID:   res.Image.ID,
		Path:      res.Path,
		Timestamp: time.Now().UTC(),
	}
	for _, m := range res.Matches {
		ev.Matches = append(ev.Matches, models.MatchedFace{
			PersonID:   m.Person.ID,
			PersonName: m.Person.Name,
			EncodingID: m.Encoding.ID,
			Distance:   m.Distance,
		})
	}
	if err := c.notifier.PublishMatch(ctx, ev); err != nil {
		slog.Warn("publish match event", "image_id", res.Image.ID, "error", err)
	}
}

// matchedNames lists person names once each, in match order.
func matchedNames(matches []match.Match) []string {
	seen := make(map[uuid.UUID]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m.Person.ID] {
			continue
		}
		seen[m.Person.ID] = true
		names = append(names, m.Person.Name)
	}
	return names
}

func readAll(ctx context.Context, cand source.Candidate) ([]byte, error) {
	rc, err := cand.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrExtractionFailure, cand.Path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrExtractionFailure, cand.Path, err)
	}
	return data, nil
}

func readExposure(path string, data []byte) models.Exposure {
	exp, err := metadata.ReadExposure(bytes.NewReader(data))
	if err != nil && !errors.Is(err, metadata.ErrNoExif) {
		slog.Debug("read exposure", "path", path, "error", err)
	}
	return exp
}
