package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/engine"
	"github.com/oceanworks/deckhand/internal/middleware"
)

// ActionHandlers holds dependencies for action dispatch.
type ActionHandlers struct {
	engine *engine.Engine
}

// NewActionHandlers creates a new ActionHandlers instance.
func NewActionHandlers(eng *engine.Engine) *ActionHandlers {
	return &ActionHandlers{engine: eng}
}

// Dispatch handles POST /v1/actions - executes one named action request.
//
// The response envelope is always an engine.Response. The HTTP status is
// derived from the outcome: 200 for success (including idempotent no-ops),
// the taxonomy-mapped status otherwise.
func (h *ActionHandlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req engine.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Context.RequestID == "" {
		req.Context.RequestID = middleware.GetRequestID(r.Context())
	}

	resp := h.engine.Dispatch(r.Context(), req)

	status := http.StatusOK
	if !resp.Success {
		status = apperr.HTTPStatus(resp.ErrorCode)
		middleware.UpdateResponseContext(w,
			middleware.SetErrorCode(r.Context(), string(resp.ErrorCode)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode action response", "error", err)
	}
}
