// Package image sanitizes attachment photos before they reach blob storage.
// Fault and work order photos arrive straight from crew phones and carry EXIF
// blocks with GPS positions and timestamps; everything is stripped and the
// image re-encoded before storage.
package image

import (
	"fmt"

	"github.com/h2non/bimg"
)

// Config holds re-encode settings for the sanitization pass.
type Config struct {
	// Quality for JPEG/WebP encoding (1-100).
	Quality int
	// MaxWidth and MaxHeight bound the stored image; 0 means unbounded.
	// Aspect ratio is preserved.
	MaxWidth  int
	MaxHeight int
}

// DefaultConfig returns the settings used for shipboard photo attachments.
// 2048px is plenty for survey documentation and keeps satellite-link sync
// volumes down.
func DefaultConfig() Config {
	return Config{
		Quality:  85,
		MaxWidth: 2048,
	}
}

// Sanitize strips all metadata from the image and re-encodes it in its
// original format, resizing if it exceeds the configured bounds. The input
// must be JPEG, PNG, or WebP.
func Sanitize(input []byte, cfg Config) ([]byte, error) {
	img := bimg.NewImage(input)
	meta, err := img.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read image metadata: %w", err)
	}

	imgType, err := imageType(meta.Type)
	if err != nil {
		return nil, err
	}

	options := bimg.Options{
		Quality:       cfg.Quality,
		StripMetadata: true,
		Type:          imgType,
	}
	if cfg.MaxWidth > 0 && meta.Size.Width > cfg.MaxWidth {
		options.Width = cfg.MaxWidth
	}
	if cfg.MaxHeight > 0 && meta.Size.Height > cfg.MaxHeight {
		options.Height = cfg.MaxHeight
	}

	out, err := img.Process(options)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}
	return out, nil
}

// SanitizeBytes runs Sanitize with the default configuration.
func SanitizeBytes(input []byte) ([]byte, error) {
	return Sanitize(input, DefaultConfig())
}

// imageType maps bimg's detected type string onto the formats attachments may
// use. Anything else is rejected rather than transcoded.
func imageType(detected string) (bimg.ImageType, error) {
	switch detected {
	case "jpeg":
		return bimg.JPEG, nil
	case "png":
		return bimg.PNG, nil
	case "webp":
		return bimg.WEBP, nil
	default:
		return bimg.UNKNOWN, fmt.Errorf("unsupported image format: %s", detected)
	}
}

// VerifyNoEXIF reports whether the image carries no identifying EXIF fields.
// Used by tests to prove the sanitization pass holds.
func VerifyNoEXIF(imageBytes []byte) (bool, error) {
	img := bimg.NewImage(imageBytes)
	meta, err := img.Metadata()
	if err != nil {
		return false, fmt.Errorf("failed to read image metadata: %w", err)
	}

	exif := meta.EXIF
	hasEXIF := exif.Make != "" || exif.Model != "" ||
		exif.GPSLatitude != "" || exif.GPSLongitude != "" ||
		exif.DateTimeOriginal != "" || exif.Software != ""
	return !hasEXIF, nil
}
