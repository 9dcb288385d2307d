package entity

import (
	"context"
	"sync"
)

// Filter narrows List queries. Zero values mean no filtering.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Store defines read-side access to entity records. Every method is
// tenant-scoped; a record owned by another tenant behaves as absent.
type Store interface {
	// GetByID retrieves one record, excluding administratively removed ones.
	GetByID(ctx context.Context, tenantID string, family Family, id string) (*Entity, error)

	// List retrieves records of one family, newest first.
	List(ctx context.Context, tenantID string, family Family, filter Filter) ([]*Entity, error)
}

// InMemoryStore is an in-memory Store for tests and development.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Entity // id -> record
	order   []string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Entity)}
}

// Put inserts or replaces a record. Test seeding helper.
func (s *InMemoryStore) Put(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[e.ID]; !exists {
		s.order = append(s.order, e.ID)
	}
	s.records[e.ID] = e.Clone()
}

// GetByID retrieves one record scoped to the tenant.
func (s *InMemoryStore) GetByID(ctx context.Context, tenantID string, family Family, id string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(tenantID, family, id)
}

// lookup must be called with the mutex held.
func (s *InMemoryStore) lookup(tenantID string, family Family, id string) (*Entity, error) {
	e, ok := s.records[id]
	if !ok || e.TenantID != tenantID || e.Family != family || e.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

// List retrieves records of one family, newest first.
func (s *InMemoryStore) List(ctx context.Context, tenantID string, family Family, filter Filter) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Entity
	skipped := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.records[s.order[i]]
		if e.TenantID != tenantID || e.Family != family || e.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		results = append(results, e.Clone())
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}
