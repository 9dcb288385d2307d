// Package api provides the HTTP surface for the action engine, including
// standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/middleware"
)

// HTTP-level error codes that have no engine taxonomy equivalent.
const (
	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeBadRequest indicates a malformed request body or query.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeUnsupportedType indicates an unsupported content type for upload.
	ErrCodeUnsupportedType = "unsupported_type"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
// It writes the appropriate HTTP status code and returns a JSON error body.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is pushed back to the logging middleware so it appears in
// the request log for 4xx and 5xx responses.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	// Update the context in the response writer for the logging middleware
	middleware.UpdateResponseContext(w, middleware.SetErrorCode(ctx, code))

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteEngineError writes an error response for an engine taxonomy code,
// deriving the HTTP status from the code.
func WriteEngineError(w http.ResponseWriter, ctx context.Context, code apperr.Code, message string) {
	WriteError(w, ctx, apperr.HTTPStatus(code), string(code), message)
}

// StatusCodeMapping returns the recommended HTTP status code for common error codes.
// Engine taxonomy codes defer to apperr.HTTPStatus; HTTP-level codes are mapped here.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeBadRequest, ErrCodeUnsupportedType:
		return http.StatusBadRequest
	default:
		return apperr.HTTPStatus(apperr.Code(code))
	}
}
