// Package metadata extracts best-effort descriptive data from staged media files.
package metadata

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/desertthunder/immport/internal/models"
)

// Extractor reads MIME type, EXIF capture data and pixel dimensions from a file.
type Extractor struct{}

// NewExtractor returns an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract describes the file at path. Only a failure to read the file is an error;
// missing or corrupt EXIF simply leaves those fields empty.
func (e *Extractor) Extract(path string) (*models.Metadata, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}

	meta := &models.Metadata{
		SchemaVersion: models.MetadataSchemaVersion,
		Mime:          baseType(mtype.String()),
	}

	if !strings.HasPrefix(meta.Mime, "image/") {
		return meta, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return meta, nil
	}
	defer f.Close()

	if cfg, _, err := image.DecodeConfig(f); err == nil {
		meta.Width, meta.Height = cfg.Width, cfg.Height
	}

	if _, err := f.Seek(0, 0); err != nil {
		return meta, nil
	}
	if x, err := exif.Decode(f); err == nil {
		readEXIF(x, meta)
	}

	return meta, nil
}

func readEXIF(x *exif.Exif, meta *models.Metadata) {
	if t, err := x.DateTime(); err == nil {
		meta.TakenAt = &t
	}
	if lat, long, err := x.LatLong(); err == nil {
		meta.Latitude, meta.Longitude = &lat, &long
	}
	meta.CameraMake = stringTag(x, exif.Make)
	meta.CameraModel = stringTag(x, exif.Model)

	if meta.Width == 0 {
		meta.Width = intTag(x, exif.PixelXDimension)
	}
	if meta.Height == 0 {
		meta.Height = intTag(x, exif.PixelYDimension)
	}
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func intTag(x *exif.Exif, name exif.FieldName) int {
	tag, err := x.Get(name)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

func baseType(m string) string {
	base, _, _ := strings.Cut(m, ";")
	return strings.TrimSpace(base)
}
