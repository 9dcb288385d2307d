package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestCORS_WithRequestIDStack exercises CORS behind the RequestID middleware
// the way cmd/api chains them.
func TestCORS_WithRequestIDStack(t *testing.T) {
	corsConfig := CORSConfig{
		AllowedOrigins:   []string{"https://office.oceanworks.example"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           3600,
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	})

	wrapped := RequestID(CORS(corsConfig)(handler))

	t.Run("preflight carries request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/actions", nil)
		req.Header.Set("Origin", "https://office.oceanworks.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rr := httptest.NewRecorder()

		wrapped.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status %d, got %d", http.StatusNoContent, rr.Code)
		}
		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "https://office.oceanworks.example" {
			t.Errorf("expected allow-origin header, got %q", origin)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header to be set")
		}
	})

	t.Run("allowed origin reaches the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/faults", nil)
		req.Header.Set("Origin", "https://office.oceanworks.example")
		rr := httptest.NewRecorder()

		wrapped.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rr.Code)
		}
		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "https://office.oceanworks.example" {
			t.Errorf("expected allow-origin header, got %q", origin)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header to be set")
		}
		if body := rr.Body.String(); body != `{"success":true}` {
			t.Errorf("unexpected body: %s", body)
		}
	})

	t.Run("unlisted origin is blocked before the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/faults", nil)
		req.Header.Set("Origin", "http://unlisted.example")
		rr := httptest.NewRecorder()

		wrapped.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Errorf("expected status %d, got %d", http.StatusForbidden, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header even on rejected requests")
		}
		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "" {
			t.Errorf("expected no allow-origin header for rejected origin, got %q", origin)
		}
	})
}
