package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// collectionFamilies maps URL collection segments to entity families.
var collectionFamilies = map[string]entity.Family{
	"faults":       entity.FamilyFault,
	"workorders":   entity.FamilyWorkOrder,
	"inventory":    entity.FamilyInventory,
	"handovers":    entity.FamilyHandover,
	"certificates": entity.FamilyCertificate,
}

// maxListLimit caps the page size for list queries.
const maxListLimit = 200

// EntityHandlers serves the read side: entity lookups, lists, and per-entity
// ledger history. All reads are scoped by the verified tenant context.
type EntityHandlers struct {
	store  entity.Store
	ledger ledger.Ledger
}

// NewEntityHandlers creates a new EntityHandlers instance.
func NewEntityHandlers(store entity.Store, led ledger.Ledger) *EntityHandlers {
	return &EntityHandlers{store: store, ledger: led}
}

// ListResponse is the envelope for list queries.
type ListResponse struct {
	Items []*entity.Entity `json:"items"`
	Count int              `json:"count"`
}

// HistoryResponse is the envelope for per-entity ledger history.
type HistoryResponse struct {
	Entries []*ledger.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// Handle routes GET /v1/{collection}, /v1/{collection}/{id}, and
// /v1/{collection}/{id}/history.
func (h *EntityHandlers) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	tc, err := tenant.FromContext(r.Context())
	if err != nil {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/"), "/"), "/")
	family, ok := collectionFamilies[parts[0]]
	if !ok {
		WriteEngineError(w, r.Context(), apperr.CodeNotFound, "Unknown collection")
		return
	}

	switch {
	case len(parts) == 1:
		h.list(w, r, tc, family)
	case len(parts) == 2 && parts[1] != "":
		h.get(w, r, tc, family, parts[1])
	case len(parts) == 3 && parts[2] == "history":
		h.history(w, r, tc, family, parts[1])
	default:
		WriteEngineError(w, r.Context(), apperr.CodeNotFound, "The requested resource was not found")
	}
}

// list handles GET /v1/{collection}?status=&limit=&offset=
func (h *EntityHandlers) list(w http.ResponseWriter, r *http.Request, tc tenant.Context, family entity.Family) {
	filter := entity.Filter{
		Status: entity.Status(r.URL.Query().Get("status")),
		Limit:  maxListLimit,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			WriteEngineError(w, r.Context(), apperr.CodeValidation, "limit must be a positive integer")
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			WriteEngineError(w, r.Context(), apperr.CodeValidation, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	items, err := h.store.List(r.Context(), tc.TenantID, family, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "list query failed", "family", family, "error", err)
		WriteEngineError(w, r.Context(), apperr.CodeUnexpected, "Failed to list records")
		return
	}

	writeJSON(w, r, http.StatusOK, ListResponse{Items: items, Count: len(items)})
}

// get handles GET /v1/{collection}/{id}
func (h *EntityHandlers) get(w http.ResponseWriter, r *http.Request, tc tenant.Context, family entity.Family, id string) {
	e, err := h.store.GetByID(r.Context(), tc.TenantID, family, id)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			WriteEngineError(w, r.Context(), apperr.CodeNotFound, "The requested record was not found")
			return
		}
		slog.ErrorContext(r.Context(), "get query failed", "family", family, "id", id, "error", err)
		WriteEngineError(w, r.Context(), apperr.CodeUnexpected, "Failed to load record")
		return
	}

	writeJSON(w, r, http.StatusOK, e)
}

// history handles GET /v1/{collection}/{id}/history?limit=
// Entries are returned newest first.
func (h *EntityHandlers) history(w http.ResponseWriter, r *http.Request, tc tenant.Context, family entity.Family, id string) {
	// History of a record another tenant owns behaves as absent, so resolve
	// the entity first.
	if _, err := h.store.GetByID(r.Context(), tc.TenantID, family, id); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			WriteEngineError(w, r.Context(), apperr.CodeNotFound, "The requested record was not found")
			return
		}
		slog.ErrorContext(r.Context(), "history lookup failed", "family", family, "id", id, "error", err)
		WriteEngineError(w, r.Context(), apperr.CodeUnexpected, "Failed to load record")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteEngineError(w, r.Context(), apperr.CodeValidation, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	ref := entity.Ref{Family: family, ID: id}
	entries, err := h.ledger.HistoryFor(r.Context(), tc.TenantID, ref, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "history query failed", "ref", ref.String(), "error", err)
		WriteEngineError(w, r.Context(), apperr.CodeUnexpected, "Failed to load history")
		return
	}

	writeJSON(w, r, http.StatusOK, HistoryResponse{Entries: entries, Count: len(entries)})
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
