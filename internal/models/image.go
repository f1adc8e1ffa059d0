package models

import (
	"time"

	"github.com/google/uuid"
)

// IdentityKey decides whether an image has been ingested before. It is not a
// content hash: the same bytes under another name are a different image.
type IdentityKey struct {
	Filename   string    `json:"filename"`
	ModifiedAt time.Time `json:"modified_at"`
	SizeBytes  int64     `json:"size_bytes"`
}

// Normalize returns the key with its timestamp in UTC at second resolution,
// the precision every store keeps.
func (k IdentityKey) Normalize() IdentityKey {
	k.ModifiedAt = k.ModifiedAt.UTC().Truncate(time.Second)
	return k
}

// Exposure holds the optional camera fields of an image. Nil means unknown.
type Exposure struct {
	Aperture     *float64   `json:"aperture,omitempty" db:"aperture"`
	ShutterSpeed *float64   `json:"shutter_speed,omitempty" db:"shutter_speed"`
	ISO          *int       `json:"iso,omitempty" db:"iso"`
	DateTaken    *time.Time `json:"date_taken,omitempty" db:"date_taken"`
}

// Empty reports whether no exposure field is known.
func (e Exposure) Empty() bool {
	return e.Aperture == nil && e.ShutterSpeed == nil && e.ISO == nil && e.DateTaken == nil
}

type Image struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Filename   string    `json:"filename" db:"filename"`
	Path       string    `json:"path" db:"path"`
	ModifiedAt time.Time `json:"modified_at" db:"modified_at"`
	SizeBytes  int64     `json:"size_bytes" db:"size_bytes"`
	Exposure
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (i Image) Identity() IdentityKey {
	return IdentityKey{Filename: i.Filename, ModifiedAt: i.ModifiedAt, SizeBytes: i.SizeBytes}.Normalize()
}
