package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{
			name: "direct taxonomy error",
			err:  New(CodePermissionDenied, "role not permitted"),
			want: CodePermissionDenied,
		},
		{
			name: "wrapped taxonomy error",
			err:  fmt.Errorf("dispatch: %w", New(CodeIllegalTransition, "fault is closed")),
			want: CodeIllegalTransition,
		},
		{
			name: "plain error classified as unexpected",
			err:  errors.New("disk full"),
			want: CodeUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageOf_PlainErrorDoesNotLeak(t *testing.T) {
	err := errors.New("pq: connection refused on 10.0.0.5:5432")
	msg := MessageOf(err)
	if msg != "an unexpected error occurred" {
		t.Errorf("MessageOf() = %q, want generic message", msg)
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("tx aborted")
	err := Wrap("failed to execute action", cause)

	if !errors.Is(err, cause) {
		t.Error("Wrap() should preserve the cause for errors.Is")
	}
	if CodeOf(err) != CodeUnexpected {
		t.Errorf("Wrap() code = %q, want %q", CodeOf(err), CodeUnexpected)
	}
	if MessageOf(err) != "failed to execute action" {
		t.Errorf("MessageOf() = %q, want wrap message", MessageOf(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodePermissionDenied, http.StatusForbidden},
		{CodeNotFound, http.StatusNotFound},
		{CodeIllegalTransition, http.StatusConflict},
		{CodeConflict, http.StatusConflict},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeUnexpected, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := HTTPStatus(tt.code); got != tt.want {
				t.Errorf("HTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}
