package dto

import "github.com/google/uuid"

type ImageResponse struct {
	ID           uuid.UUID `json:"id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	ModifiedAt   string    `json:"modified_at"`
	SizeBytes    int64     `json:"size_bytes"`
	Aperture     *float64  `json:"aperture,omitempty"`
	ShutterSpeed *float64  `json:"shutter_speed,omitempty"`
	ISO          *int      `json:"iso,omitempty"`
	DateTaken    string    `json:"date_taken,omitempty"`
	CreatedAt    string    `json:"created_at"`
}

// EncodingResponse describes a stored face. Vectors are only included
// when asked for with ?vectors=true.
type EncodingResponse struct {
	ID         uuid.UUID `json:"id"`
	Position   int       `json:"position"`
	Dimensions int       `json:"dimensions"`
	Vector     []float32 `json:"vector,omitempty"`
	CreatedAt  string    `json:"created_at"`
}

type EncodingListResponse struct {
	ImageID   uuid.UUID          `json:"image_id"`
	Encodings []EncodingResponse `json:"encodings"`
	Total     int                `json:"total"`
}
