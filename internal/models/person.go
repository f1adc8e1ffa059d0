package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is a human-assigned label. Names are not unique.
type Person struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Encodings []Encoding `json:"encodings,omitempty"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Encoding is one detected face's feature vector.
type Encoding struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Vector    []float32 `json:"-" db:"vector"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AssociationKind selects which side of an encoding link is meant.
type AssociationKind string

const (
	AssociateImage  AssociationKind = "image"
	AssociatePerson AssociationKind = "person"
)

func (k AssociationKind) Valid() bool {
	return k == AssociateImage || k == AssociatePerson
}

// Link ties an encoding to the image it came from or the person it depicts.
type Link struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	EncodingID uuid.UUID       `json:"encoding_id" db:"encoding_id"`
	TargetID   uuid.UUID       `json:"target_id" db:"target_id"`
	Kind       AssociationKind `json:"kind"`
}
