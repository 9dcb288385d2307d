// Package main contains tests for server wiring and shutdown behavior.
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oceanworks/deckhand/internal/api"
	"github.com/oceanworks/deckhand/internal/config"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/tenant"
)

func TestCrewActors(t *testing.T) {
	crew := []config.CrewMember{
		{ID: "actor-1", TenantID: "vessel-1", Name: "A. Mensah", Roles: []string{"engineer"}, Key: "k1"},
		{ID: "actor-2", TenantID: "vessel-2", Name: "R. Osei", Roles: []string{"hod", "master"}, Key: "k2"},
	}

	actors := crewActors(crew)
	if len(actors) != 2 {
		t.Fatalf("actors = %d, want 2", len(actors))
	}
	if actors[0].ID != "actor-1" || actors[0].TenantID != "vessel-1" || actors[0].Key != "k1" {
		t.Errorf("actors[0] = %+v", actors[0])
	}
	if len(actors[1].Roles) != 2 {
		t.Errorf("actors[1] roles = %v", actors[1].Roles)
	}
}

func TestCrewTenants(t *testing.T) {
	crew := []config.CrewMember{
		{ID: "a", TenantID: "vessel-1"},
		{ID: "b", TenantID: "vessel-2"},
		{ID: "c", TenantID: "vessel-1"},
		{ID: "d", TenantID: ""},
	}

	tenants := crewTenants(crew)
	want := []string{"vessel-1", "vessel-2"}
	if len(tenants) != len(want) {
		t.Fatalf("tenants = %v, want %v", tenants, want)
	}
	for i := range want {
		if tenants[i] != want[i] {
			t.Errorf("tenants[%d] = %q, want %q", i, tenants[i], want[i])
		}
	}
}

func TestEntityRouter_AttachmentsWithoutBlobStorage(t *testing.T) {
	store := entity.NewInMemoryStore()
	led := ledger.NewInMemoryLedger()
	router := entityRouter(api.NewEntityHandlers(store, led), nil)

	tc, err := tenant.New("vessel-1", "actor-1", "A. Mensah", []string{"engineer"})
	if err != nil {
		t.Fatalf("tenant.New error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/faults/some-id/attachments", nil)
	req = req.WithContext(tenant.WithContext(req.Context(), tc))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when blob storage is not configured", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
}

func TestEntityRouter_RoutesEntityReads(t *testing.T) {
	store := entity.NewInMemoryStore()
	led := ledger.NewInMemoryLedger()
	router := entityRouter(api.NewEntityHandlers(store, led), nil)

	tc, err := tenant.New("vessel-1", "actor-1", "A. Mensah", []string{"engineer"})
	if err != nil {
		t.Fatalf("tenant.New error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/faults", nil)
	req = req.WithContext(tenant.WithContext(req.Context(), tc))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for empty list", rr.Code)
	}
}

// TestGracefulShutdown_InFlightRequests verifies that Shutdown lets an
// in-flight request complete before the server stops.
func TestGracefulShutdown_InFlightRequests(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := listener.Addr().String()

	handlerStarted := make(chan struct{})
	handlerCanContinue := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(handlerStarted)
		<-handlerCanContinue
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Handler: mux}
	serverStopped := make(chan struct{})
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			t.Errorf("server error: %v", err)
		}
		close(serverStopped)
	}()

	requestDone := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/slow")
		if err != nil {
			t.Errorf("request error: %v", err)
			requestDone <- 0
			return
		}
		resp.Body.Close()
		requestDone <- resp.StatusCode
	}()

	select {
	case <-handlerStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("handler failed to start in time")
	}

	shutdownDone := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			t.Errorf("shutdown error: %v", err)
		}
		close(shutdownDone)
	}()

	time.Sleep(50 * time.Millisecond)
	close(handlerCanContinue)

	select {
	case status := <-requestDone:
		if status != http.StatusOK {
			t.Errorf("in-flight request status = %d, want 200", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request failed to complete in time")
	}

	select {
	case <-shutdownDone:
	case <-time.After(15 * time.Second):
		t.Fatal("shutdown failed to complete in time")
	}
	select {
	case <-serverStopped:
	case <-time.After(5 * time.Second):
		t.Fatal("server failed to stop in time")
	}
}
