// Package attachment runs server-side uploads through validation and
// sanitization before they reach blob storage. Photos are stripped of EXIF
// data and re-encoded; PDFs pass through unchanged.
package attachment

import (
	"context"
	"errors"
	"fmt"

	"github.com/oceanworks/deckhand/internal/blob"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/image"
)

var (
	// ErrEmptyUpload is returned for a zero-length body.
	ErrEmptyUpload = errors.New("upload is empty")
)

// Store is the blob surface the pipeline writes through.
type Store interface {
	Put(ctx context.Context, req blob.SignedURLRequest, data []byte) (string, error)
}

// Upload describes one server-side attachment upload.
type Upload struct {
	TenantID    string
	Family      entity.Family
	EntityID    string
	ContentType string
	Data        []byte
}

// Pipeline validates, sanitizes, and stores attachments.
type Pipeline struct {
	store    Store
	imageCfg image.Config
}

// NewPipeline creates a pipeline writing through the given store.
func NewPipeline(store Store) *Pipeline {
	return &Pipeline{
		store:    store,
		imageCfg: image.DefaultConfig(),
	}
}

// Process sanitizes the upload and stores it, returning the object key.
// Image content is re-encoded with metadata stripped; the stored size may
// therefore differ from the uploaded size.
func (p *Pipeline) Process(ctx context.Context, up Upload) (string, error) {
	if len(up.Data) == 0 {
		return "", ErrEmptyUpload
	}
	if err := blob.ValidateContentType(up.ContentType); err != nil {
		return "", err
	}

	data := up.Data
	if isImage(up.ContentType) {
		sanitized, err := image.Sanitize(data, p.imageCfg)
		if err != nil {
			return "", fmt.Errorf("image sanitization failed: %w", err)
		}
		data = sanitized
	}

	key, err := p.store.Put(ctx, blob.SignedURLRequest{
		TenantID:    up.TenantID,
		Family:      up.Family,
		EntityID:    up.EntityID,
		ContentType: up.ContentType,
	}, data)
	if err != nil {
		return "", err
	}
	return key, nil
}

func isImage(contentType string) bool {
	switch contentType {
	case blob.MIMEImageJPEG, blob.MIMEImagePNG, blob.MIMEImageWebP:
		return true
	}
	return false
}
