package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeFaultEvent(tenantID string) Event {
	return Event{
		TenantID: tenantID,
		Action:   "closeFault",
		Family:   entity.FamilyFault,
		EntityID: "flt-0042",
		Status:   state.FaultClosed,
		ActorID:  "actor-hod",
		At:       time.Now().UTC(),
	}
}

// feedServer upgrades every request and subscribes the connection under the
// tenant named in the query string. Server-side connections are handed to
// the test over the returned channel.
func feedServer(t *testing.T, b *Broadcaster) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		b.Subscribe(r.URL.Query().Get("tenant"), conn)
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func dialFeed(t *testing.T, srv *httptest.Server, tenantID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tenant=" + tenantID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcaster_DeliversToTenantOnly(t *testing.T) {
	b := NewBroadcaster(testLogger())
	srv, _ := feedServer(t, b)

	aurora := dialFeed(t, srv, "vessel-aurora")
	borealis := dialFeed(t, srv, "vessel-borealis")

	b.Notify(context.Background(), closeFaultEvent("vessel-aurora"))

	aurora.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := aurora.ReadMessage()
	if err != nil {
		t.Fatalf("subscriber never received the event: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("event is not valid JSON: %v", err)
	}
	if got.Action != "closeFault" || got.TenantID != "vessel-aurora" {
		t.Errorf("event = %+v", got)
	}

	borealis.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := borealis.ReadMessage(); err == nil {
		t.Error("another tenant's subscriber received the event")
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(testLogger())
	srv, conns := feedServer(t, b)

	dialFeed(t, srv, "vessel-aurora")
	conn := <-conns
	if n := b.ConnectionCount("vessel-aurora"); n != 1 {
		t.Fatalf("ConnectionCount = %d, want 1", n)
	}

	b.Unsubscribe(conn)
	if n := b.ConnectionCount("vessel-aurora"); n != 0 {
		t.Errorf("ConnectionCount after Unsubscribe = %d, want 0", n)
	}

	// Repeated unsubscribe of the same connection is harmless.
	b.Unsubscribe(conn)
	b.Notify(context.Background(), closeFaultEvent("vessel-aurora"))
}

func TestBroadcaster_DropsDeadSubscriber(t *testing.T) {
	b := NewBroadcaster(testLogger())
	srv, conns := feedServer(t, b)

	dialFeed(t, srv, "vessel-aurora")
	conn := <-conns
	conn.Close()

	b.Notify(context.Background(), closeFaultEvent("vessel-aurora"))

	deadline := time.After(2 * time.Second)
	for b.ConnectionCount("vessel-aurora") != 0 {
		select {
		case <-deadline:
			t.Fatal("dead subscriber was never dropped")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// A subscriber whose send queue is full has stopped draining; Notify must
// drop it instead of blocking.
func TestBroadcaster_DropsStalledSubscriber(t *testing.T) {
	b := NewBroadcaster(testLogger())
	srv, conns := feedServer(t, b)

	dialFeed(t, srv, "vessel-aurora")
	conn := <-conns

	// Replace the live client with one whose writer is stopped and whose
	// queue cannot accept anything, the shape a stalled subscriber ends in.
	b.Unsubscribe(conn)
	stalled := &client{conn: conn, send: make(chan []byte), done: make(chan struct{})}
	b.mu.Lock()
	b.clients["vessel-aurora"] = map[*websocket.Conn]*client{conn: stalled}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.Notify(context.Background(), closeFaultEvent("vessel-aurora"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a stalled subscriber")
	}
	if n := b.ConnectionCount("vessel-aurora"); n != 0 {
		t.Errorf("ConnectionCount = %d, want 0 after drop", n)
	}
}
