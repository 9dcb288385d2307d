package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oceanworks/deckhand/internal/middleware"
)

// loggedStack builds the RequestID -> Logging -> handler chain used in
// production, with the log output captured for assertions.
func loggedStack(handler http.Handler) (http.Handler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return middleware.RequestID(middleware.Logging(logger)(handler)), &buf
}

func TestRequestIDStack_GeneratesAndLogs(t *testing.T) {
	stack, buf := loggedStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if middleware.GetRequestID(r.Context()) == "" {
			t.Error("request id missing from handler context")
		}
		w.Write([]byte(`{"success":true}`))
	}))

	rr := httptest.NewRecorder()
	stack.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/faults/flt-0042", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	responseID := rr.Header().Get("X-Request-ID")
	if responseID == "" {
		t.Fatal("expected X-Request-ID header in response")
	}

	logOutput := buf.String()
	for _, field := range []string{
		"method=GET",
		"path=/v1/faults/flt-0042",
		"status=200",
		"request_id=" + responseID,
	} {
		if !strings.Contains(logOutput, field) {
			t.Errorf("log missing %q: %s", field, logOutput)
		}
	}
}

func TestRequestIDStack_PreservesCallerID(t *testing.T) {
	const callerID = "bridge-console-42"

	var capturedID string
	stack, buf := loggedStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedID = middleware.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/handovers", nil)
	req.Header.Set("X-Request-ID", callerID)
	rr := httptest.NewRecorder()
	stack.ServeHTTP(rr, req)

	if capturedID != callerID {
		t.Errorf("handler saw request id %q, want %q", capturedID, callerID)
	}
	if got := rr.Header().Get("X-Request-ID"); got != callerID {
		t.Errorf("response header = %q, want %q", got, callerID)
	}
	if !strings.Contains(buf.String(), "request_id="+callerID) {
		t.Errorf("log should carry the caller id: %s", buf.String())
	}
}

func TestLoggingStack_ErrorLevelForServerErrors(t *testing.T) {
	stack, buf := loggedStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	stack.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/actions", nil))

	logOutput := buf.String()
	if !strings.Contains(logOutput, "level=ERROR") {
		t.Errorf("5xx should log at error level: %s", logOutput)
	}
	if !strings.Contains(logOutput, "status=500") {
		t.Errorf("log missing status field: %s", logOutput)
	}
}

func BenchmarkRequestID(b *testing.B) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/faults", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
