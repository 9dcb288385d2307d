// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/oceanworks/deckhand/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header carrying the client's key.
const IdempotencyKeyHeader = "Idempotency-Key"

type idempotencyKeyContextKey struct{}

// SetIdempotencyKey stores the idempotency key in the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey returns the key from context, or "" when absent.
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// captureWriter tees the response so a successful body can be cached for
// replay. The first WriteHeader wins, matching net/http semantics.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	wroteHead  bool
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	if !w.wroteHead {
		w.statusCode = statusCode
		w.wroteHead = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b)
	return n, err
}

func writeIdempotencyError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	UpdateResponseContext(w, SetErrorCode(ctx, code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, `{"error":"`+code+`","message":"`+message+`"}`)
}

// IdempotencyMiddleware makes POSTs to the listed routes replay-safe: the
// Idempotency-Key header is mandatory there, a repeated key gets the stored
// response byte-for-byte, and a fresh key has its 2xx response cached.
// Non-2xx responses are never cached, so a failed dispatch can be retried
// with the same key.
func IdempotencyMiddleware(repo idempotency.Repository, routes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !routes[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				writeIdempotencyError(w, r.Context(), http.StatusBadRequest,
					"missing_idempotency_key", "Idempotency-Key header is required for this request")
				return
			}
			if err := idempotency.ValidateKey(key); err != nil {
				code, message := "invalid_idempotency_key", "Invalid Idempotency-Key format"
				if err == idempotency.ErrKeyTooLong {
					code = "idempotency_key_too_long"
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				writeIdempotencyError(w, r.Context(), http.StatusBadRequest, code, message)
				return
			}

			ctx := SetIdempotencyKey(r.Context(), key)
			r = r.WithContext(ctx)

			// Lookups are tenant-scoped: two tenants reusing the same key
			// string must never see each other's cached responses.
			tenantID := GetTenantID(ctx)
			existing, err := repo.Get(tenantID, key)
			if err == nil && existing.TenantID != tenantID {
				// The repository should make this impossible; treat a
				// mismatched record as a miss rather than leak it.
				slog.ErrorContext(ctx, "idempotency record tenant mismatch", "key", key)
				err = idempotency.ErrKeyNotFound
			}
			if err == nil {
				slog.InfoContext(ctx, "replaying cached idempotent response",
					"key", key,
					"status", existing.ResponseStatusCode,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.ResponseStatusCode)
				io.WriteString(w, existing.ResponseBody)
				return
			}
			if err != idempotency.ErrKeyNotFound {
				// Repository trouble must not block dispatches; skip caching.
				slog.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			cw := newCaptureWriter(w)
			next.ServeHTTP(cw, r)

			if cw.statusCode < 200 || cw.statusCode >= 300 {
				return
			}

			responseBody := cw.body.String()
			record := &idempotency.IdempotencyKey{
				Key:                key,
				Method:             r.Method,
				Route:              r.URL.Path,
				TenantID:           tenantID,
				ResponseHash:       idempotency.ComputeResponseHash(responseBody),
				Status:             idempotency.StatusCompleted,
				ResponseBody:       responseBody,
				ResponseStatusCode: cw.statusCode,
			}
			if err := repo.Store(record); err != nil {
				// Response is already on the wire; log and move on.
				slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
			}
		})
	}
}
