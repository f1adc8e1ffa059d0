package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wlockwood/lits/internal/models"
	"github.com/wlockwood/lits/internal/storage"
	"github.com/wlockwood/lits/pkg/dto"
)

type ReportHandler struct {
	reports storage.Reports
}

func NewReportHandler(reports storage.Reports) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func (h *ReportHandler) Faces(c *gin.Context) {
	rows, err := h.reports.FaceHistogram(c.Request.Context())
	if err != nil {
		storeError(c, "report", err)
		return
	}
	c.JSON(http.StatusOK, dto.FaceHistogramResponse{Rows: nonNil(rows)})
}

func (h *ReportHandler) People(c *gin.Context) {
	rows, err := h.reports.ImagesPerPerson(c.Request.Context())
	if err != nil {
		storeError(c, "report", err)
		return
	}
	c.JSON(http.StatusOK, dto.PeopleReportResponse{Rows: nonNil(rows)})
}

func (h *ReportHandler) Timeline(c *gin.Context) {
	rows, err := h.reports.Timeline(c.Request.Context())
	if err != nil {
		storeError(c, "report", err)
		return
	}
	c.JSON(http.StatusOK, dto.TimelineResponse{Rows: nonNil(rows)})
}

// Exposure returns value counts, optionally for one ?field= only.
func (h *ReportHandler) Exposure(c *gin.Context) {
	rows, err := h.reports.ExposureFrequencies(c.Request.Context())
	if err != nil {
		storeError(c, "report", err)
		return
	}

	if field := c.Query("field"); field != "" {
		switch field {
		case models.ExposureAperture, models.ExposureShutterSpeed, models.ExposureISO:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown exposure field"})
			return
		}
		filtered := rows[:0:0]
		for _, r := range rows {
			if r.Field == field {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	c.JSON(http.StatusOK, dto.ExposureResponse{Rows: nonNil(rows)})
}

// nonNil keeps empty reports encoding as [] rather than null.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
