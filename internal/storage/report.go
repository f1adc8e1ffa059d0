package storage

import (
	"fmt"
	"strconv"

	"github.com/wlockwood/lits/internal/models"
)

var exposureFields = []string{models.ExposureAperture, models.ExposureShutterSpeed, models.ExposureISO}

type valueCount struct {
	value  float64
	images int
}

func exposureRows(field string, counts []valueCount) []models.ExposureRow {
	rows := make([]models.ExposureRow, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, models.ExposureRow{
			Field:  field,
			Value:  formatExposure(field, c.value),
			Images: c.images,
		})
	}
	return rows
}

// formatExposure renders a stored value the way cameras label it:
// f/2.8, 1/250 or 2s, ISO as a plain integer.
func formatExposure(field string, v float64) string {
	switch field {
	case models.ExposureAperture:
		return "f/" + strconv.FormatFloat(v, 'f', -1, 64)
	case models.ExposureShutterSpeed:
		if v > 0 && v < 1 {
			return fmt.Sprintf("1/%d", int(1/v+0.5))
		}
		return strconv.FormatFloat(v, 'f', -1, 64) + "s"
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}
