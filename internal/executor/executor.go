// Package executor applies one authorized action as a single atomic unit:
// the entity write (or writes, for compound actions) and the corresponding
// ledger rows either all persist or none do. The entity's state is re-read
// inside the transaction immediately before writing, so a transition that
// became illegal between the gate's check and the commit aborts instead of
// writing.
package executor

import (
	"context"
	"errors"

	"github.com/oceanworks/deckhand/internal/action"
	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/signature"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// Plan is one fully authorized mutation, produced by the dispatcher after
// the gate accepted the request. Tenant scope comes exclusively from the
// verified tenant context it carries.
type Plan struct {
	Tenant    tenant.Context
	Def       *action.Definition
	Target    *entity.Ref // nil for create actions
	Fields    map[string]string
	Signature signature.Payload

	// Request metadata copied onto ledger rows.
	RequestID string
	Origin    string

	// CommitGuard, when set, is evaluated inside the transaction before any
	// write. A non-nil error aborts the whole unit.
	CommitGuard func() error
}

// Outcome reports what one Execute call did.
type Outcome struct {
	// Entity is the primary entity after execution.
	Entity *entity.Entity

	// Spawned is the secondary entity a compound action created, nil
	// otherwise.
	Spawned *entity.Entity

	// Entries are the ledger rows written, in write order. Empty for an
	// idempotent no-op.
	Entries []*ledger.Entry

	// NoOp marks a same-target-state re-submission that succeeded without a
	// state change or ledger row.
	NoOp bool
}

// Executor applies plans atomically.
type Executor interface {
	Execute(ctx context.Context, plan Plan) (*Outcome, error)
}

// primaryRole picks the role recorded on ledger rows: the most privileged
// role the actor holds among those the action permits.
func primaryRole(tc tenant.Context, def *action.Definition) string {
	for _, r := range def.AllowedRoles {
		if tc.HasRole(r) {
			return string(r)
		}
	}
	if len(tc.Roles) > 0 {
		return string(tc.Roles[0])
	}
	return ""
}

// buildEntry assembles one ledger row for a plan. Actor identity is copied
// by value; chain fields are filled by the ledger on append.
func buildEntry(plan Plan, before, after *entity.Entity) *ledger.Entry {
	return &ledger.Entry{
		TenantID:  plan.Tenant.TenantID,
		Family:    after.Family,
		EntityID:  after.ID,
		Action:    plan.Def.Name,
		ActorID:   plan.Tenant.ActorID,
		ActorName: plan.Tenant.ActorName,
		ActorRole: primaryRole(plan.Tenant, plan.Def),
		Before:    before,
		After:     after.Clone(),
		Signature: plan.Signature,
		RequestID: plan.RequestID,
		Origin:    plan.Origin,
	}
}

// applyFields merges payload fields onto the entity, skipping the target id
// field. Conflicting field updates follow last-committed-write-wins.
func applyFields(e *entity.Entity, def *action.Definition, fields map[string]string) {
	for k, v := range fields {
		if k == def.TargetField {
			continue
		}
		e.Fields[k] = v
	}
}

// spawnEntity builds the secondary entity of a compound action in its
// family's initial state, linked to the primary both ways.
func spawnEntity(plan Plan, machines *state.Machines, primary *entity.Entity) (*entity.Entity, error) {
	spec := plan.Def.Spawns
	m, err := machines.ForFamily(spec.Family)
	if err != nil {
		return nil, apperr.Wrap("spawn family has no machine", err)
	}

	fields := make(map[string]string, len(spec.CopyFields))
	for _, name := range spec.CopyFields {
		if v, ok := plan.Fields[name]; ok {
			fields[name] = v
		}
	}

	spawned := entity.New(spec.Family, plan.Tenant.TenantID, m.Initial(), plan.Tenant.ActorID, fields)
	spawned.AddRef(primary.Ref())
	primary.AddRef(spawned.Ref())
	return spawned, nil
}

// classify maps context expiry and sentinel storage errors onto the
// taxonomy. Anything unrecognized becomes an Unexpected wrap.
func classify(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.New(apperr.CodeTimeout, "the operation did not complete before the deadline")
	}
	if errors.Is(err, context.Canceled) {
		return apperr.New(apperr.CodeTimeout, "the operation was cancelled")
	}
	if errors.Is(err, entity.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "entity not found")
	}
	if errors.Is(err, entity.ErrConflict) {
		return apperr.New(apperr.CodeConflict, "entity already exists")
	}
	return apperr.Wrap(msg, err)
}
