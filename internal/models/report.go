package models

// FaceHistogramRow counts images by how many faces they contain.
type FaceHistogramRow struct {
	Faces  int `json:"faces" db:"faces"`
	Images int `json:"images" db:"images"`
}

type PersonImagesRow struct {
	PersonName string `json:"person_name" db:"person_name"`
	Images     int    `json:"images" db:"images"`
}

// TimelineRow counts dated images per "YYYY-MM" period.
type TimelineRow struct {
	Period string `json:"period" db:"period"`
	Images int    `json:"images" db:"images"`
}

// ExposureRow counts images sharing one value of an exposure field.
type ExposureRow struct {
	Field  string `json:"field" db:"field"`
	Value  string `json:"value" db:"value"`
	Images int    `json:"images" db:"images"`
}

const (
	ExposureAperture     = "aperture"
	ExposureShutterSpeed = "shutter_speed"
	ExposureISO          = "iso"
)
