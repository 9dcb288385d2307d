package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// LedgerHandlers serves audit ledger queries and exports.
type LedgerHandlers struct {
	ledger ledger.Ledger
}

// NewLedgerHandlers creates a new LedgerHandlers instance.
func NewLedgerHandlers(led ledger.Ledger) *LedgerHandlers {
	return &LedgerHandlers{ledger: led}
}

// SignedResponse is the envelope for signed-action queries.
type SignedResponse struct {
	Entries []*ledger.Entry `json:"entries"`
	Count   int             `json:"count"`
}

// SignedActions handles GET /v1/ledger/signed?from=&to=
// Both bounds are RFC 3339 timestamps; from is required, to defaults to now.
// Only fully-formed signatures qualify; canonical-empty rows are excluded.
func (h *LedgerHandlers) SignedActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	tc, err := tenant.FromContext(r.Context())
	if err != nil {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	rawFrom := r.URL.Query().Get("from")
	if rawFrom == "" {
		WriteEngineError(w, r.Context(), apperr.CodeValidation, "from is required (RFC 3339)")
		return
	}
	from, err := time.Parse(time.RFC3339, rawFrom)
	if err != nil {
		WriteEngineError(w, r.Context(), apperr.CodeValidation, "from must be an RFC 3339 timestamp")
		return
	}

	to := time.Now().UTC()
	if rawTo := r.URL.Query().Get("to"); rawTo != "" {
		to, err = time.Parse(time.RFC3339, rawTo)
		if err != nil {
			WriteEngineError(w, r.Context(), apperr.CodeValidation, "to must be an RFC 3339 timestamp")
			return
		}
	}
	if to.Before(from) {
		WriteEngineError(w, r.Context(), apperr.CodeValidation, "to must not precede from")
		return
	}

	entries, err := h.ledger.SignedActionsInRange(r.Context(), tc.TenantID, from, to)
	if err != nil {
		slog.ErrorContext(r.Context(), "signed-action query failed", "error", err)
		WriteEngineError(w, r.Context(), apperr.CodeUnexpected, "Failed to query ledger")
		return
	}

	writeJSON(w, r, http.StatusOK, SignedResponse{Entries: entries, Count: len(entries)})
}

// exportContentTypes maps export formats to response content types.
var exportContentTypes = map[ledger.ExportFormat]string{
	ledger.ExportFormatCSV:  "text/csv; charset=utf-8",
	ledger.ExportFormatJSON: "application/json",
	ledger.ExportFormatCBOR: "application/cbor",
}

// Export handles GET /v1/ledger/export?format=csv|json|cbor&from=&to=&signed_only=
// The export is a point-in-time rendering for survey hand-off; the ledger
// itself never leaves the system of record.
func (h *LedgerHandlers) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	tc, err := tenant.FromContext(r.Context())
	if err != nil {
		WriteError(w, r.Context(), http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	format := ledger.ExportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ledger.ExportFormatJSON
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		WriteEngineError(w, r.Context(), apperr.CodeValidation, "format must be csv, json, or cbor")
		return
	}

	opts := ledger.ExportOptions{
		Format:     format,
		SignedOnly: r.URL.Query().Get("signed_only") == "true",
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		opts.From, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteEngineError(w, r.Context(), apperr.CodeValidation, "from must be an RFC 3339 timestamp")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		opts.To, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteEngineError(w, r.Context(), apperr.CodeValidation, "to must be an RFC 3339 timestamp")
			return
		}
	}

	data, err := ledger.Export(r.Context(), h.ledger, tc.TenantID, opts)
	if err != nil {
		slog.ErrorContext(r.Context(), "ledger export failed", "format", format, "error", err)
		WriteEngineError(w, r.Context(), apperr.CodeUnexpected, "Failed to export ledger")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="ledger-export.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to write export", "error", err)
	}
}
