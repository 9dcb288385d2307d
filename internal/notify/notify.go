// Package notify fans out entity state changes to interested observers.
// Delivery is best-effort: a failed or slow notification never affects the
// committed action.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/oceanworks/deckhand/internal/entity"
)

// Event describes one committed state change.
type Event struct {
	TenantID string        `json:"tenant_id"`
	Action   string        `json:"action"`
	Family   entity.Family `json:"family"`
	EntityID string        `json:"entity_id"`
	Status   entity.Status `json:"status"`
	ActorID  string        `json:"actor_id"`
	At       time.Time     `json:"at"`
}

// Notifier receives committed state changes.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier writes each event to the structured log. Default when no
// realtime transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, ev Event) {
	n.logger.InfoContext(ctx, "state change",
		"tenant_id", ev.TenantID,
		"action", ev.Action,
		"family", ev.Family,
		"entity_id", ev.EntityID,
		"status", ev.Status,
		"actor_id", ev.ActorID,
	)
}

// Multi fans one event out to several notifiers.
type Multi []Notifier

// Notify delivers the event to every notifier in order.
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}
