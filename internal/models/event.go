package models

import (
	"time"

	"github.com/google/uuid"
)

// TagRequest asks the metadata writer to add person names as keywords.
type TagRequest struct {
	ImageID uuid.UUID `json:"image_id"`
	Path    string    `json:"path"`
	Names   []string  `json:"names"`
}

// MatchEvent is published once an image's person links are persisted.
type MatchEvent struct {
	ImageID   uuid.UUID     `json:"image_id"`
	Path      string        `json:"path"`
	Matches   []MatchedFace `json:"matches"`
	Timestamp time.Time     `json:"timestamp"`
}

type MatchedFace struct {
	PersonID   uuid.UUID `json:"person_id"`
	PersonName string    `json:"person_name"`
	EncodingID uuid.UUID `json:"encoding_id"`
	Distance   float64   `json:"distance"`
}
