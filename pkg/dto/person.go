package dto

import "github.com/google/uuid"

type PersonResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	EncodingCount int       `json:"encoding_count"`
	CreatedAt     string    `json:"created_at"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
}

type PersonImagesResponse struct {
	PersonID uuid.UUID `json:"person_id"`
	Paths    []string  `json:"paths"`
	Total    int       `json:"total"`
}
