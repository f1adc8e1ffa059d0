package dto

import "github.com/wlockwood/lits/internal/models"

type FaceHistogramResponse struct {
	Rows []models.FaceHistogramRow `json:"rows"`
}

type PeopleReportResponse struct {
	Rows []models.PersonImagesRow `json:"rows"`
}

type TimelineResponse struct {
	Rows []models.TimelineRow `json:"rows"`
}

type ExposureResponse struct {
	Rows []models.ExposureRow `json:"rows"`
}
