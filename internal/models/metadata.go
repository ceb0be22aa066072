package models

import "time"

// MetadataSchemaVersion is the current version of the persisted [Metadata] layout.
const MetadataSchemaVersion = 1

// MetadataQuality grades how much of an item's metadata could be read.
type MetadataQuality string

const (
	MetadataEXIF    MetadataQuality = "exif"
	MetadataPartial MetadataQuality = "partial"
	MetadataNone    MetadataQuality = "none"
)

// Metadata is the best-effort description extracted from an item's bytes.
type Metadata struct {
	SchemaVersion int        `json:"schema_version"`
	Mime          string     `json:"mime,omitempty"`
	TakenAt       *time.Time `json:"taken_at,omitempty"`
	CameraMake    string     `json:"camera_make,omitempty"`
	CameraModel   string     `json:"camera_model,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
	Width         int        `json:"width,omitempty"`
	Height        int        `json:"height,omitempty"`
}

// Quality grades m: EXIF capture data present, only a sniffed type, or nothing.
func (m *Metadata) Quality() MetadataQuality {
	switch {
	case m == nil:
		return MetadataNone
	case m.TakenAt != nil || m.CameraMake != "" || m.CameraModel != "" || m.Latitude != nil:
		return MetadataEXIF
	case m.Mime != "" || m.Width > 0:
		return MetadataPartial
	}
	return MetadataNone
}
