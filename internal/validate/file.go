package validate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileTooSmall    = errors.New("file too small")
)

const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageWebP = "image/webp"
	MIMEAppPDF    = "application/pdf"
)

// AllowedImageTypes covers fault and work order photos.
var AllowedImageTypes = []string{MIMEImageJPEG, MIMEImagePNG, MIMEImageWebP}

// AllowedDocumentTypes covers certificate scans and handover reports.
var AllowedDocumentTypes = []string{MIMEAppPDF}

// FileConstraints bounds an upload. Zero MinSizeBytes or MaxSizeBytes means
// unbounded on that side.
type FileConstraints struct {
	AllowedTypes []string
	MaxSizeBytes int64
	MinSizeBytes int64
}

// MIMEType normalizes (trim + lowercase) and checks a MIME type against the
// allowlist.
func MIMEType(mimeType string, allowedTypes []string) (string, error) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return "", ErrEmpty
	}

	for _, allowed := range allowedTypes {
		if mimeType == strings.ToLower(allowed) {
			return mimeType, nil
		}
	}
	return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mimeType)
}

// FileSize checks an upload size against the constraints.
func FileSize(sizeBytes int64, constraints FileConstraints) error {
	if sizeBytes <= 0 {
		return errors.New("file size must be positive")
	}
	if constraints.MinSizeBytes > 0 && sizeBytes < constraints.MinSizeBytes {
		return fmt.Errorf("%w: got %d bytes, minimum is %d", ErrFileTooSmall, sizeBytes, constraints.MinSizeBytes)
	}
	if constraints.MaxSizeBytes > 0 && sizeBytes > constraints.MaxSizeBytes {
		return fmt.Errorf("%w: got %d bytes, maximum is %d", ErrFileTooLarge, sizeBytes, constraints.MaxSizeBytes)
	}
	return nil
}

// File validates MIME type then size, returning the normalized type.
func File(mimeType string, sizeBytes int64, constraints FileConstraints) (string, error) {
	validatedType, err := MIMEType(mimeType, constraints.AllowedTypes)
	if err != nil {
		return "", err
	}
	if err := FileSize(sizeBytes, constraints); err != nil {
		return "", err
	}
	return validatedType, nil
}

// ImageFile validates a photo attachment: JPEG/PNG/WebP, max 10 MB.
func ImageFile(mimeType string, sizeBytes int64) (string, error) {
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedImageTypes,
		MaxSizeBytes: 10 * 1024 * 1024,
	})
}

// DocumentFile validates a document attachment: PDF only, max 25 MB.
func DocumentFile(mimeType string, sizeBytes int64) (string, error) {
	return File(mimeType, sizeBytes, FileConstraints{
		AllowedTypes: AllowedDocumentTypes,
		MaxSizeBytes: 25 * 1024 * 1024,
	})
}
