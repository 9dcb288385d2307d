package executor

import (
	"context"
	"sync"

	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/state"
)

// InMemoryExecutor applies plans against in-memory stores. A single mutex
// serializes Execute calls, which gives the same effect as row locking: the
// re-read inside the critical section observes the latest committed state.
type InMemoryExecutor struct {
	mu       sync.Mutex
	store    *entity.InMemoryStore
	ledger   *ledger.InMemoryLedger
	machines *state.Machines
}

// NewInMemoryExecutor creates an executor over in-memory storage.
func NewInMemoryExecutor(store *entity.InMemoryStore, l *ledger.InMemoryLedger, machines *state.Machines) *InMemoryExecutor {
	return &InMemoryExecutor{store: store, ledger: l, machines: machines}
}

// Execute applies one plan. All validation runs before any write so a late
// failure leaves both stores untouched.
func (x *InMemoryExecutor) Execute(ctx context.Context, plan Plan) (*Outcome, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err, "execute aborted")
	}

	if plan.Def.Creates {
		return x.create(ctx, plan)
	}
	return x.transition(ctx, plan)
}

func (x *InMemoryExecutor) create(ctx context.Context, plan Plan) (*Outcome, error) {
	m, err := x.machines.ForFamily(plan.Def.Family)
	if err != nil {
		return nil, apperr.Wrap("no machine for family", err)
	}

	if plan.CommitGuard != nil {
		if err := plan.CommitGuard(); err != nil {
			return nil, err
		}
	}

	fields := make(map[string]string, len(plan.Fields))
	for k, v := range plan.Fields {
		fields[k] = v
	}
	e := entity.New(plan.Def.Family, plan.Tenant.TenantID, m.Initial(), plan.Tenant.ActorID, fields)

	entry := buildEntry(plan, nil, e)
	if err := entry.Validate(); err != nil {
		return nil, apperr.Wrap("ledger entry invalid", err)
	}

	x.store.Put(e)
	if err := x.ledger.Append(ctx, entry); err != nil {
		return nil, apperr.Wrap("ledger append failed", err)
	}
	return &Outcome{Entity: e, Entries: []*ledger.Entry{entry}}, nil
}

func (x *InMemoryExecutor) transition(ctx context.Context, plan Plan) (*Outcome, error) {
	if plan.Target == nil {
		return nil, apperr.New(apperr.CodeUnexpected, "transition plan has no target")
	}

	current, err := x.store.GetByID(ctx, plan.Tenant.TenantID, plan.Target.Family, plan.Target.ID)
	if err != nil {
		return nil, classify(ctx, err, "load target")
	}

	m, err := x.machines.ForFamily(plan.Def.Family)
	if err != nil {
		return nil, apperr.Wrap("no machine for family", err)
	}

	// Re-evaluate against the state observed inside the critical section.
	// The gate's earlier check may be stale by now.
	result, next, err := m.Eval(current.Status, plan.Def.Name)
	if err != nil {
		return nil, apperr.Wrap("state evaluation failed", err)
	}
	switch result {
	case state.ResultNoOp:
		return &Outcome{Entity: current, NoOp: true}, nil
	case state.ResultIllegal:
		return nil, apperr.Newf(apperr.CodeIllegalTransition,
			"%s is not permitted while the %s is %s", plan.Def.Name, current.Family, current.Status)
	}

	if plan.CommitGuard != nil {
		if err := plan.CommitGuard(); err != nil {
			return nil, err
		}
	}

	before := current.Clone()
	updated := current.Clone()
	updated.Status = next
	applyFields(updated, plan.Def, plan.Fields)
	updated.Touch(plan.Tenant.ActorID)

	var spawned *entity.Entity
	if plan.Def.Spawns != nil {
		spawned, err = spawnEntity(plan, x.machines, updated)
		if err != nil {
			return nil, err
		}
	}

	entries := []*ledger.Entry{buildEntry(plan, before, updated)}
	if spawned != nil {
		entries = append(entries, buildEntry(plan, nil, spawned))
	}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, apperr.Wrap("ledger entry invalid", err)
		}
	}

	x.store.Put(updated)
	if spawned != nil {
		x.store.Put(spawned)
	}
	for _, entry := range entries {
		if err := x.ledger.Append(ctx, entry); err != nil {
			return nil, apperr.Wrap("ledger append failed", err)
		}
	}

	out := &Outcome{Entity: updated, Spawned: spawned, Entries: entries}
	return out, nil
}
