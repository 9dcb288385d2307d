package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/signature"
	"github.com/oceanworks/deckhand/internal/state"
)

func TestEntityGet_Success(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)
	seeded := f.seedFault(t, "vessel-1", state.FaultOpen)

	req := httptest.NewRequest(http.MethodGet, "/v1/faults/"+seeded.ID, nil)
	req = withTenant(t, req, "vessel-1", "actor-1", "crew")
	w := httptest.NewRecorder()

	handlers.Handle(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got entity.Entity
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != seeded.ID {
		t.Errorf("id = %q, want %q", got.ID, seeded.ID)
	}
	if got.Status != state.FaultOpen {
		t.Errorf("status = %q, want %q", got.Status, state.FaultOpen)
	}
}

func TestEntityGet_CrossTenantBehavesAsAbsent(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)
	seeded := f.seedFault(t, "vessel-1", state.FaultOpen)

	req := httptest.NewRequest(http.MethodGet, "/v1/faults/"+seeded.ID, nil)
	req = withTenant(t, req, "vessel-2", "actor-2", "master")
	w := httptest.NewRecorder()

	handlers.Handle(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Code != "not_found" {
		t.Errorf("error code = %q, want not_found", errResp.Error.Code)
	}
}

func TestEntityGet_NoVerifiedTenant(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)

	req := httptest.NewRequest(http.MethodGet, "/v1/faults/some-id", nil)
	w := httptest.NewRecorder()

	handlers.Handle(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestEntityList(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)
	f.seedFault(t, "vessel-1", state.FaultOpen)
	f.seedFault(t, "vessel-1", state.FaultInvestigating)
	f.seedFault(t, "vessel-2", state.FaultOpen)

	tests := []struct {
		name      string
		target    string
		wantCount int
	}{
		{"all for tenant", "/v1/faults", 2},
		{"status filter", "/v1/faults?status=investigating", 1},
		{"status filter no match", "/v1/faults?status=closed", 0},
		{"limit applies", "/v1/faults?limit=1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req = withTenant(t, req, "vessel-1", "actor-1", "crew")
			w := httptest.NewRecorder()

			handlers.Handle(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp ListResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", resp.Count, tt.wantCount)
			}
		})
	}
}

func TestEntityList_InvalidPagination(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)

	for _, target := range []string{"/v1/faults?limit=abc", "/v1/faults?limit=0", "/v1/faults?offset=-1"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req = withTenant(t, req, "vessel-1", "actor-1", "crew")
		w := httptest.NewRecorder()

		handlers.Handle(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, w.Code)
		}
	}
}

func TestEntityList_UnknownCollection(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)

	req := httptest.NewRequest(http.MethodGet, "/v1/cargo", nil)
	req = withTenant(t, req, "vessel-1", "actor-1", "crew")
	w := httptest.NewRecorder()

	handlers.Handle(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestEntityHistory(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)
	seeded := f.seedFault(t, "vessel-1", state.FaultOpen)

	ctx := authedContext(t, "vessel-1", "actor-1", "engineer")
	for _, action := range []string{"reportFault", "acknowledgeFault"} {
		err := f.ledger.Append(ctx, &ledger.Entry{
			TenantID:  "vessel-1",
			Family:    entity.FamilyFault,
			EntityID:  seeded.ID,
			Action:    action,
			ActorID:   "actor-1",
			ActorRole: "engineer",
			After:     seeded,
			Signature: signature.Empty(),
		})
		if err != nil {
			t.Fatalf("seed ledger entry: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/faults/"+seeded.ID+"/history", nil)
	req = withTenant(t, req, "vessel-1", "actor-1", "crew")
	w := httptest.NewRecorder()

	handlers.Handle(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp HistoryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
	// Newest first.
	if resp.Count == 2 && resp.Entries[0].Action != "acknowledgeFault" {
		t.Errorf("first entry action = %q, want acknowledgeFault", resp.Entries[0].Action)
	}
}

func TestEntityHistory_CrossTenantBehavesAsAbsent(t *testing.T) {
	f := newFixture(t)
	handlers := NewEntityHandlers(f.store, f.ledger)
	seeded := f.seedFault(t, "vessel-1", state.FaultOpen)

	req := httptest.NewRequest(http.MethodGet, "/v1/faults/"+seeded.ID+"/history", nil)
	req = withTenant(t, req, "vessel-2", "actor-2", "master")
	w := httptest.NewRecorder()

	handlers.Handle(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
