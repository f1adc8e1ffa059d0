package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wlockwood/lits/internal/observability"
	"github.com/wlockwood/lits/internal/source"
)

// Summary counts the outcome of a run. Processed images completed without
// error; Skipped ones among them were already stored and not re-extracted.
type Summary struct {
	Processed int
	Skipped   int
	New       int
	Matched   int
	Errored   int
	Faces     int
	Duration  time.Duration
}

func (s Summary) String() string {
	return fmt.Sprintf("processed %d (new %d, skipped %d), matched %d, errored %d, faces %d in %s",
		s.Processed, s.New, s.Skipped, s.Matched, s.Errored, s.Faces, s.Duration.Round(time.Millisecond))
}

func (s *Summary) add(res *Result, err error) {
	if err != nil {
		s.Errored++
		return
	}
	s.Processed++
	if res.Reused {
		s.Skipped++
	} else {
		s.New++
	}
	if len(res.Matches) > 0 {
		s.Matched++
	}
	s.Faces += res.Faces
}

// Progress is told about every candidate once it has been handled.
type Progress func(cand source.Candidate, res *Result, err error)

// Scan ingests candidates in order. Failures are logged and counted per
// image; only cancellation of ctx ends the run early, in which case the
// partial summary is returned with ctx's error.
func (c *Coordinator) Scan(ctx context.Context, cands []source.Candidate, progress Progress) (Summary, error) {
	var sum Summary
	start := time.Now()

	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			sum.Duration = time.Since(start)
			return sum, err
		}

		res, err := c.Ingest(ctx, cand)
		if err != nil && ctx.Err() != nil {
			sum.Duration = time.Since(start)
			return sum, ctx.Err()
		}
		if err != nil {
			slog.Error("image failed", "path", cand.Path, "error", err)
			observability.ImagesTotal.WithLabelValues("error").Inc()
		}
		sum.add(res, err)
		if progress != nil {
			progress(cand, res, err)
		}
	}

	sum.Duration = time.Since(start)
	slog.Info("scan finished",
		"processed", sum.Processed,
		"new", sum.New,
		"skipped", sum.Skipped,
		"matched", sum.Matched,
		"errored", sum.Errored,
		"faces", sum.Faces,
		"duration", sum.Duration,
	)
	return sum, nil
}
