// Package metadata reads exposure data from photos and writes person
// keywords back to XMP sidecar files.
package metadata

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/wlockwood/lits/internal/models"
)

// ErrNoExif means the file carries no EXIF block at all.
var ErrNoExif = errors.New("no exif data")

// ReadExposure extracts aperture, shutter speed, ISO and capture time.
// Tags that are absent or malformed leave their field nil.
func ReadExposure(r io.Reader) (models.Exposure, error) {
	x, err := exif.Decode(r)
	if err != nil {
		if x == nil {
			return models.Exposure{}, fmt.Errorf("%w: %v", ErrNoExif, err)
		}
		// Partial decodes still yield usable tags.
		if exif.IsCriticalError(err) {
			return models.Exposure{}, fmt.Errorf("decode exif: %w", err)
		}
	}

	var exp models.Exposure
	if v, ok := rational(x, exif.FNumber); ok {
		exp.Aperture = &v
	}
	if v, ok := rational(x, exif.ExposureTime); ok {
		exp.ShutterSpeed = &v
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if iso, err := tag.Int(0); err == nil && iso > 0 {
			exp.ISO = &iso
		}
	}
	if t, err := x.DateTime(); err == nil {
		// EXIF times carry no zone; keep the camera's wall clock.
		taken := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		exp.DateTaken = &taken
	}
	return exp, nil
}

func rational(x *exif.Exif, field exif.FieldName) (float64, bool) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, false
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 || num <= 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}
