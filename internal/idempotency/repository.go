// Package idempotency provides repository implementations for idempotency key storage.
package idempotency

import (
	"sync"
	"time"
)

// InMemoryRepository is a map-backed Repository. Cached responses are
// ephemeral by design (see DefaultExpiry), so a process restart losing the
// cache only costs a re-execution, which the engine's own same-state no-op
// policy absorbs.
type InMemoryRepository struct {
	mu   sync.RWMutex
	keys map[string]*IdempotencyKey
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{keys: make(map[string]*IdempotencyKey)}
}

// storageKey scopes client keys per tenant. The NUL separator cannot occur
// in either part, so distinct (tenant, key) pairs never collide.
func storageKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

// Get implements Repository. The returned record is a copy; callers cannot
// mutate the stored one.
func (r *InMemoryRepository) Get(tenantID, key string) (*IdempotencyKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[storageKey(tenantID, key)]
	if !ok {
		return nil, ErrKeyNotFound
	}

	c := *record
	return &c, nil
}

// Store implements Repository. CreatedAt defaults to now when unset.
func (r *InMemoryRepository) Store(record *IdempotencyKey) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sk := storageKey(record.TenantID, record.Key)
	if _, exists := r.keys[sk]; exists {
		return ErrKeyExists
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	c := *record
	r.keys[sk] = &c
	return nil
}

// DeleteOlderThan implements Repository.
func (r *InMemoryRepository) DeleteOlderThan(duration time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-duration)
	var deleted int64
	for key, record := range r.keys {
		if record.CreatedAt.Before(cutoff) {
			delete(r.keys, key)
			deleted++
		}
	}
	return deleted, nil
}
