package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/notify"
	"github.com/oceanworks/deckhand/internal/state"
)

func TestFeedSubscribe_NoVerifiedTenant(t *testing.T) {
	handlers := NewFeedHandlers(notify.NewBroadcaster(nil))

	req := httptest.NewRequest(http.MethodGet, "/v1/feed", nil)
	w := httptest.NewRecorder()

	handlers.Subscribe(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestFeedSubscribe_ReceivesTenantEvents(t *testing.T) {
	broadcaster := notify.NewBroadcaster(nil)
	handlers := NewFeedHandlers(broadcaster)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlers.Subscribe(w, withTenant(t, r, "vessel-1", "actor-1", "crew"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/feed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the subscription to register before publishing.
	deadline := time.Now().Add(time.Second)
	for broadcaster.ConnectionCount("vessel-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sent := notify.Event{
		TenantID: "vessel-1",
		Action:   "acknowledgeFault",
		Family:   entity.FamilyFault,
		EntityID: "fault-1",
		Status:   state.FaultInvestigating,
		ActorID:  "actor-1",
		At:       time.Now().UTC(),
	}
	broadcaster.Notify(context.Background(), sent)

	// Events for another tenant must not reach this connection.
	broadcaster.Notify(context.Background(), notify.Event{
		TenantID: "vessel-2",
		Action:   "reportFault",
		Family:   entity.FamilyFault,
		EntityID: "fault-other",
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got notify.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if got.TenantID != "vessel-1" || got.Action != "acknowledgeFault" || got.EntityID != "fault-1" {
		t.Errorf("unexpected event: %+v", got)
	}

	// The cross-tenant event must never arrive.
	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, extra, err := conn.ReadMessage(); err == nil {
		t.Errorf("unexpected extra message: %s", extra)
	}
}
