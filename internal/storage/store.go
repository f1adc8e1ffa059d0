package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wlockwood/lits/internal/models"
)

var (
	// ErrNotFound is returned by zero-or-one lookups that found nothing.
	ErrNotFound = errors.New("not found")

	// ErrMultipleMatches means more than one image shares an identity key.
	// The unique constraint makes this unreachable unless the store is corrupt.
	ErrMultipleMatches = errors.New("multiple images match identity key")

	// ErrAmbiguousName means more than one person shares the looked-up name.
	ErrAmbiguousName = errors.New("ambiguous person name")

	// ErrInvalidAssociation rejects encoding links without a usable target kind.
	ErrInvalidAssociation = errors.New("invalid encoding association")

	// ErrConflict is a uniqueness violation. Idempotent operations absorb it.
	ErrConflict = errors.New("persistence conflict")
)

// Store is the relational store for images, people, encodings and the
// links between them. Implementations are safe for use by one writer.
type Store interface {
	FindImage(ctx context.Context, key models.IdentityKey) (uuid.UUID, error)
	GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error)
	InsertImage(ctx context.Context, img *models.Image) (uuid.UUID, error)
	AddImage(ctx context.Context, img *models.Image, vectors [][]float32) (uuid.UUID, error)
	UpdateImageExposure(ctx context.Context, id uuid.UUID, exp models.Exposure) error

	AddPerson(ctx context.Context, name string) (uuid.UUID, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	PersonByName(ctx context.Context, name string) (*models.Person, error)
	AllPeople(ctx context.Context) ([]models.Person, error)

	AddEncoding(ctx context.Context, vector []float32, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error)
	LinkEncoding(ctx context.Context, encodingID, target uuid.UUID, kind models.AssociationKind) (uuid.UUID, error)
	EncodingsForImage(ctx context.Context, imageID uuid.UUID) ([]models.Encoding, error)
	EncodingsForPerson(ctx context.Context, personID uuid.UUID) ([]models.Encoding, error)
	ImagesForPerson(ctx context.Context, personID uuid.UUID) ([]string, error)

	Reports

	Ping(ctx context.Context) error
	Close() error
}

// Reports are read-only projections over the schema.
type Reports interface {
	FaceHistogram(ctx context.Context) ([]models.FaceHistogramRow, error)
	ImagesPerPerson(ctx context.Context) ([]models.PersonImagesRow, error)
	Timeline(ctx context.Context) ([]models.TimelineRow, error)
	ExposureFrequencies(ctx context.Context) ([]models.ExposureRow, error)
}

func checkKind(kind models.AssociationKind, target uuid.UUID) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAssociation, kind)
	}
	if target == uuid.Nil {
		return fmt.Errorf("%w: no %s target", ErrInvalidAssociation, kind)
	}
	return nil
}
