package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/wlockwood/lits/internal/match"
	"github.com/wlockwood/lits/internal/models"
	"github.com/wlockwood/lits/internal/source"
	"github.com/wlockwood/lits/internal/storage"
)

// ErrNotSingleFace rejects a known-person photo that does not show exactly
// one face.
var ErrNotSingleFace = errors.New("known person image must contain exactly one face")

// PersonName derives a person's name from a reference photo's file name.
// Names are NFC so that decomposed file system names match typed ones.
func PersonName(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return norm.NFC.String(strings.TrimSpace(base))
}

// Bootstrap registers the person shown in each reference photo and links
// the photo's single face to them. Matched counts the people linked.
func (c *Coordinator) Bootstrap(ctx context.Context, cands []source.Candidate, progress Progress) (Summary, error) {
	var sum Summary
	start := time.Now()

	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			sum.Duration = time.Since(start)
			return sum, err
		}

		res, err := c.learn(ctx, cand)
		if err != nil && ctx.Err() != nil {
			sum.Duration = time.Since(start)
			return sum, ctx.Err()
		}
		if err != nil {
			slog.Error("known person image failed", "path", cand.Path, "error", err)
		}
		sum.add(res, err)
		if progress != nil {
			progress(cand, res, err)
		}
	}

	sum.Duration = time.Since(start)
	slog.Info("known people loaded", "linked", sum.Matched, "errored", sum.Errored, "duration", sum.Duration)
	return sum, nil
}

func (c *Coordinator) learn(ctx context.Context, cand source.Candidate) (*Result, error) {
	name := PersonName(cand.Filename)
	if name == "" {
		return nil, fmt.Errorf("%s: empty person name", cand.Path)
	}

	res, encs, err := c.ensureImage(ctx, cand)
	if err != nil {
		return nil, err
	}
	if len(encs) != 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrNotSingleFace, cand.Path, len(encs))
	}

	personID, err := c.personFor(ctx, name)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.LinkEncoding(ctx, encs[0].ID, personID, models.AssociatePerson); err != nil {
		return nil, fmt.Errorf("link %s to %s: %w", cand.Path, name, err)
	}
	slog.Debug("known person linked", "path", cand.Path, "person", name, "person_id", personID)

	res.Matches = []match.Match{{Person: models.Person{ID: personID, Name: name}, Encoding: encs[0]}}
	return res, nil
}

// personFor finds the person called name, creating them on first use.
// More than one person with the name is an error for this file.
func (c *Coordinator) personFor(ctx context.Context, name string) (uuid.UUID, error) {
	p, err := c.store.PersonByName(ctx, name)
	switch {
	case err == nil:
		return p.ID, nil
	case errors.Is(err, storage.ErrNotFound):
		id, err := c.store.AddPerson(ctx, name)
		if err != nil {
			return uuid.Nil, fmt.Errorf("add person %s: %w", name, err)
		}
		slog.Info("person added", "name", name, "person_id", id)
		return id, nil
	default:
		return uuid.Nil, fmt.Errorf("person %s: %w", name, err)
	}
}
