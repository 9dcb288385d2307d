// Live state-change feed over WebSocket.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/oceanworks/deckhand/internal/notify"
	"github.com/oceanworks/deckhand/internal/tenant"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the bridge console origin is fixed
		return true
	},
}

// FeedHandlers holds dependencies for the live feed WebSocket endpoint.
type FeedHandlers struct {
	broadcaster *notify.Broadcaster
}

// NewFeedHandlers creates a new FeedHandlers instance.
func NewFeedHandlers(broadcaster *notify.Broadcaster) *FeedHandlers {
	return &FeedHandlers{broadcaster: broadcaster}
}

// Subscribe handles GET /v1/feed - upgrades to a WebSocket carrying the
// tenant's committed state changes. Events for other tenants never reach
// this connection.
func (h *FeedHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tc, err := tenant.FromContext(ctx)
	if err != nil {
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"tenant_id", tc.TenantID,
		)
		return
	}

	h.broadcaster.Subscribe(tc.TenantID, conn)

	slog.InfoContext(ctx, "feed subscriber connected",
		"tenant_id", tc.TenantID,
		"actor_id", tc.ActorID,
	)

	// Hold the connection open; the read loop only drains control frames
	// and detects disconnect. The feed is one-way.
	go func() {
		defer func() {
			h.broadcaster.Unsubscribe(conn)
			_ = conn.Close()
			slog.Info("feed subscriber disconnected",
				"tenant_id", tc.TenantID,
				"actor_id", tc.ActorID,
			)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
