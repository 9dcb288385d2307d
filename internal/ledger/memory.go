package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oceanworks/deckhand/internal/entity"
)

// Ledger defines the append-only audit store. There is no update or delete
// contract; none exists in any implementation.
type Ledger interface {
	// Append validates and records one entry, filling id, timestamp, and
	// hash-chain fields.
	Append(ctx context.Context, e *Entry) error

	// HistoryFor retrieves a tenant's entries for one entity, newest first.
	// Limit 0 means no limit.
	HistoryFor(ctx context.Context, tenantID string, ref entity.Ref, limit int) ([]*Entry, error)

	// SignedActionsInRange retrieves a tenant's signed entries in
	// [start, end], oldest first.
	SignedActionsInRange(ctx context.Context, tenantID string, start, end time.Time) ([]*Entry, error)

	// AllForTenant retrieves every entry for a tenant, oldest first. Used
	// by chain verification and export.
	AllForTenant(ctx context.Context, tenantID string) ([]*Entry, error)
}

// InMemoryLedger is an in-memory Ledger for tests and development.
// Thread-safe via RWMutex.
type InMemoryLedger struct {
	mu       sync.RWMutex
	entries  []*Entry
	lastHash map[string]string // tenant -> hash of newest entry
}

// NewInMemoryLedger creates an empty in-memory ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{lastHash: make(map[string]string)}
}

// Append validates and records one entry.
func (l *InMemoryLedger) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := e.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.PrevHash = l.lastHash[e.TenantID]
	e.Hash = ComputeHash(e)

	stored := *e
	l.entries = append(l.entries, &stored)
	l.lastHash[e.TenantID] = e.Hash
	return nil
}

// HistoryFor retrieves a tenant's entries for one entity, newest first.
func (l *InMemoryLedger) HistoryFor(ctx context.Context, tenantID string, ref entity.Ref, limit int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []*Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.TenantID != tenantID || e.Family != ref.Family || e.EntityID != ref.ID {
			continue
		}
		copied := *e
		results = append(results, &copied)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// SignedActionsInRange retrieves a tenant's signed entries in [start, end],
// oldest first.
func (l *InMemoryLedger) SignedActionsInRange(ctx context.Context, tenantID string, start, end time.Time) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []*Entry
	for _, e := range l.entries {
		if e.TenantID != tenantID || !e.Signed() {
			continue
		}
		if e.CreatedAt.Before(start) || e.CreatedAt.After(end) {
			continue
		}
		copied := *e
		results = append(results, &copied)
	}
	return results, nil
}

// AllForTenant returns every entry for a tenant, oldest first. Used by chain
// verification and export.
func (l *InMemoryLedger) AllForTenant(ctx context.Context, tenantID string) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []*Entry
	for _, e := range l.entries {
		if e.TenantID != tenantID {
			continue
		}
		copied := *e
		results = append(results, &copied)
	}
	return results, nil
}
