package dto

import "github.com/google/uuid"

// WSEvent is the envelope pushed to WebSocket clients.
type WSEvent struct {
	Type    string        `json:"type"`
	ImageID uuid.UUID     `json:"image_id"`
	Data    MatchResponse `json:"data"`
}

type MatchResponse struct {
	Path      string          `json:"path"`
	Matches   []MatchedPerson `json:"matches"`
	Timestamp string          `json:"timestamp"`
}

type MatchedPerson struct {
	PersonID   uuid.UUID `json:"person_id"`
	PersonName string    `json:"person_name"`
	EncodingID uuid.UUID `json:"encoding_id"`
	Distance   float64   `json:"distance"`
}
