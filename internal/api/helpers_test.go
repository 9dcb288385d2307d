package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/oceanworks/deckhand/internal/action"
	"github.com/oceanworks/deckhand/internal/engine"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/executor"
	"github.com/oceanworks/deckhand/internal/gate"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// fixture wires an in-memory engine stack for handler tests.
type fixture struct {
	engine *engine.Engine
	store  *entity.InMemoryStore
	ledger *ledger.InMemoryLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	machines, err := state.NewMachines()
	if err != nil {
		t.Fatalf("NewMachines: %v", err)
	}
	registry, err := action.NewRegistry(machines)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	store := entity.NewInMemoryStore()
	led := ledger.NewInMemoryLedger()
	eng := engine.New(engine.Config{
		Registry: registry,
		Gate:     gate.New(),
		Machines: machines,
		Store:    store,
		Executor: executor.NewInMemoryExecutor(store, led, machines),
	})
	return &fixture{engine: eng, store: store, ledger: led}
}

func (f *fixture) seedFault(t *testing.T, tenantID string, status entity.Status) *entity.Entity {
	t.Helper()
	e := entity.New(entity.FamilyFault, tenantID, status, "actor-seed", map[string]string{
		"title":       "steering gear alarm",
		"description": "low oil level alarm on steering gear pump 1",
	})
	f.store.Put(e)
	return e
}

// withTenant attaches a verified tenant context to the request, the way the
// authentication middleware would after validating a bearer token.
func withTenant(t *testing.T, r *http.Request, tenantID, actorID string, roles ...string) *http.Request {
	t.Helper()
	tc, err := tenant.New(tenantID, actorID, "Test Actor", roles)
	if err != nil {
		t.Fatalf("tenant.New: %v", err)
	}
	return r.WithContext(tenant.WithContext(r.Context(), tc))
}

func authedContext(t *testing.T, tenantID, actorID string, roles ...string) context.Context {
	t.Helper()
	tc, err := tenant.New(tenantID, actorID, "Test Actor", roles)
	if err != nil {
		t.Fatalf("tenant.New: %v", err)
	}
	return tenant.WithContext(context.Background(), tc)
}
