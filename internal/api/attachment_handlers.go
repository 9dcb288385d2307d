// HTTP handlers for attachment uploads and per-entity attachment listings.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/attachment"
	"github.com/oceanworks/deckhand/internal/blob"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// SignUploadRequest represents the request body for POST /v1/uploads/sign.
type SignUploadRequest struct {
	Family      string `json:"family"`
	EntityID    string `json:"entity_id"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// SignUploadResponse represents the response for POST /v1/uploads/sign.
type SignUploadResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresAt string `json:"expires_at"` // RFC 3339
}

// AttachmentListResponse is the envelope for GET /v1/{collection}/{id}/attachments.
type AttachmentListResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// AttachmentHandlers holds dependencies for attachment HTTP handlers.
type AttachmentHandlers struct {
	blobService *blob.Service
	pipeline    *attachment.Pipeline
	store       entity.Store
	maxBytes    int64
}

// NewAttachmentHandlers creates a new AttachmentHandlers instance.
func NewAttachmentHandlers(blobService *blob.Service, pipeline *attachment.Pipeline, store entity.Store, maxSizeMB int) *AttachmentHandlers {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	return &AttachmentHandlers{
		blobService: blobService,
		pipeline:    pipeline,
		store:       store,
		maxBytes:    int64(maxSizeMB) * 1024 * 1024,
	}
}

// SignUpload handles POST /v1/uploads/sign - generates a pre-signed upload URL
// for an attachment on an entity the caller's tenant owns.
func (h *AttachmentHandlers) SignUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req SignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.ContentType == "" {
		WriteEngineError(w, ctx, apperr.CodeValidation, "content_type is required")
		return
	}
	if req.SizeBytes <= 0 {
		WriteEngineError(w, ctx, apperr.CodeValidation, "size_bytes must be positive")
		return
	}

	family := entity.Family(req.Family)
	if !entity.ValidFamily(family) {
		WriteEngineError(w, ctx, apperr.CodeValidation, "Unknown entity family")
		return
	}

	// The attachment target must exist and belong to the caller's tenant.
	if _, err := h.store.GetByID(ctx, tc.TenantID, family, req.EntityID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			WriteEngineError(w, ctx, apperr.CodeNotFound, "Entity not found")
			return
		}
		slog.ErrorContext(ctx, "entity lookup failed", "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to resolve entity")
		return
	}

	signedURL, err := h.blobService.GenerateSignedURL(ctx, blob.SignedURLRequest{
		TenantID:    tc.TenantID,
		Family:      family,
		EntityID:    req.EntityID,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrUnsupportedType):
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType,
				"Unsupported content type. Allowed types: image/jpeg, image/png, image/webp, application/pdf")
		case errors.Is(err, blob.ErrFileTooLarge):
			WriteEngineError(w, ctx, apperr.CodeValidation, "File size exceeds maximum allowed")
		case errors.Is(err, blob.ErrInvalidEntityID):
			WriteEngineError(w, ctx, apperr.CodeValidation, "Invalid entity id")
		default:
			slog.ErrorContext(ctx, "failed to generate signed URL", "error", err)
			WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to generate signed URL")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, SignUploadResponse{
		URL:       signedURL.URL,
		Key:       signedURL.Key,
		ExpiresAt: signedURL.ExpiresAt.Format(time.RFC3339),
	})
}

// Upload handles POST /v1/{collection}/{id}/attachments - accepts a raw body
// with its Content-Type header, runs it through the sanitization pipeline, and
// stores it. Oversized bodies get 413.
func (h *AttachmentHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	family, entityID, ok := parseAttachmentPath(r.URL.Path)
	if !ok {
		WriteEngineError(w, ctx, apperr.CodeNotFound, "The requested resource was not found")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		WriteEngineError(w, ctx, apperr.CodeValidation, "Content-Type header is required")
		return
	}

	if _, err := h.store.GetByID(ctx, tc.TenantID, family, entityID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			WriteEngineError(w, ctx, apperr.CodeNotFound, "Entity not found")
			return
		}
		slog.ErrorContext(ctx, "entity lookup failed", "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to resolve entity")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Upload exceeds maximum allowed size")
			return
		}
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read upload body")
		return
	}

	key, err := h.pipeline.Process(ctx, attachment.Upload{
		TenantID:    tc.TenantID,
		Family:      family,
		EntityID:    entityID,
		ContentType: contentType,
		Data:        body,
	})
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrUnsupportedType):
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType,
				"Unsupported content type. Allowed types: image/jpeg, image/png, image/webp, application/pdf")
		case errors.Is(err, blob.ErrFileTooLarge):
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Upload exceeds maximum allowed size")
		case errors.Is(err, attachment.ErrEmptyUpload):
			WriteEngineError(w, ctx, apperr.CodeValidation, "Upload body is empty")
		default:
			slog.ErrorContext(ctx, "attachment upload failed", "error", err)
			WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to store attachment")
		}
		return
	}

	slog.InfoContext(ctx, "attachment stored",
		"tenant_id", tc.TenantID,
		"family", family,
		"entity_id", entityID,
		"key", key,
	)

	writeJSON(w, r, http.StatusCreated, map[string]string{"key": key})
}

// Remove handles DELETE /v1/attachments?key= - administrative removal,
// restricted to the master role. Ledger rows are never touched.
func (h *AttachmentHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodDelete {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}
	if !tc.HasRole(tenant.RoleMaster) {
		WriteEngineError(w, ctx, apperr.CodePermissionDenied, "Attachment removal requires the master role")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		WriteEngineError(w, ctx, apperr.CodeValidation, "key is required")
		return
	}
	// Keys are namespaced by tenant; a master can only remove within their
	// own vessel's prefix.
	if !strings.HasPrefix(key, tc.TenantID+"/") {
		WriteEngineError(w, ctx, apperr.CodeNotFound, "Attachment not found")
		return
	}

	if err := h.blobService.DeleteObject(ctx, key); err != nil {
		slog.ErrorContext(ctx, "attachment removal failed", "key", key, "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to remove attachment")
		return
	}

	slog.InfoContext(ctx, "attachment removed",
		"tenant_id", tc.TenantID,
		"actor_id", tc.ActorID,
		"key", key,
	)
	w.WriteHeader(http.StatusNoContent)
}

// parseAttachmentPath extracts the family and entity id from
// /v1/{collection}/{id}/attachments.
func parseAttachmentPath(path string) (entity.Family, string, bool) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/v1/"), "/"), "/")
	if len(parts) != 3 || parts[2] != "attachments" || parts[1] == "" {
		return "", "", false
	}
	family, ok := collectionFamilies[parts[0]]
	if !ok {
		return "", "", false
	}
	return family, parts[1], true
}

// ListForEntity handles GET /v1/{collection}/{id}/attachments - lists stored
// attachment keys for one entity, scoped to the caller's tenant.
func (h *AttachmentHandlers) ListForEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	family, entityID, ok := parseAttachmentPath(r.URL.Path)
	if !ok {
		WriteEngineError(w, ctx, apperr.CodeNotFound, "The requested resource was not found")
		return
	}

	if _, err := h.store.GetByID(ctx, tc.TenantID, family, entityID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			WriteEngineError(w, ctx, apperr.CodeNotFound, "Entity not found")
			return
		}
		slog.ErrorContext(ctx, "entity lookup failed", "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to resolve entity")
		return
	}

	keys, err := h.blobService.ListForEntity(ctx, tc.TenantID, family, entityID)
	if err != nil {
		slog.ErrorContext(ctx, "attachment listing failed", "error", err)
		WriteEngineError(w, ctx, apperr.CodeUnexpected, "Failed to list attachments")
		return
	}

	writeJSON(w, r, http.StatusOK, AttachmentListResponse{Keys: keys, Count: len(keys)})
}
