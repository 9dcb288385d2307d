package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/oceanworks/deckhand/internal/action"
	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/executor"
	"github.com/oceanworks/deckhand/internal/gate"
	"github.com/oceanworks/deckhand/internal/ledger"
	"github.com/oceanworks/deckhand/internal/signature"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
)

type harness struct {
	engine *Engine
	store  *entity.InMemoryStore
	ledger *ledger.InMemoryLedger
}

func newHarness(t *testing.T) *harness {
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
	eng := New(Config{
		Registry: registry,
		Gate:     gate.New(),
		Machines: machines,
		Store:    store,
		Executor: executor.NewInMemoryExecutor(store, led, machines),
	})
	return &harness{engine: eng, store: store, ledger: led}
}

func (h *harness) seedFault(t *testing.T, tenantID string, status entity.Status) *entity.Entity {
	t.Helper()
	e := entity.New(entity.FamilyFault, tenantID, status, "actor-seed", map[string]string{
		"title":       "steering gear alarm",
		"description": "low oil level alarm on steering gear pump 1",
	})
	h.store.Put(e)
	return e
}

func authedCtx(t *testing.T, tenantID, actorID string, roles ...string) context.Context {
	t.Helper()
	tc, err := tenant.New(tenantID, actorID, "", roles)
	if err != nil {
		t.Fatalf("tenant.New: %v", err)
	}
	return tenant.WithContext(context.Background(), tc)
}

func TestDispatchCreate(t *testing.T) {
	h := newHarness(t)
	ctx := authedCtx(t, "vessel-1", "actor-1", "crew")

	resp := h.engine.Dispatch(ctx, Request{
		Action:  "reportFault",
		Context: RequestContext{TenantID: "vessel-1", RequestID: "req-1"},
		Payload: map[string]any{
			"title":       "hydraulic leak",
			"description": "visible leak under the hatch cover hydraulics",
			"equipment":   "hatch cover ram 3",
		},
	})
	if !resp.Success {
		t.Fatalf("Dispatch failed: %s %s", resp.ErrorCode, resp.Message)
	}
	if resp.Entity == nil || resp.Entity.Status != state.FaultOpen {
		t.Errorf("entity missing or wrong status: %+v", resp.Entity)
	}

	history, err := h.ledger.HistoryFor(context.Background(), "vessel-1", resp.Entity.Ref(), 0)
	if err != nil {
		t.Fatalf("HistoryFor: %v", err)
	}
	if len(history) != 1 || history[0].RequestID != "req-1" {
		t.Errorf("ledger history = %+v", history)
	}
}

func TestDispatchRoleDeniedBeforeStateCheck(t *testing.T) {
	h := newHarness(t)
	fault := h.seedFault(t, "vessel-1", state.FaultInvestigating)
	ctx := authedCtx(t, "vessel-1", "actor-1", "crew")

	// closeFault is HOD-only and investigating is not a legal source state.
	// The role layer runs first, so the caller learns nothing about state.
	resp := h.engine.Dispatch(ctx, Request{
		Action:  "closeFault",
		Payload: map[string]any{"fault_id": fault.ID},
	})
	if resp.Success || resp.ErrorCode != apperr.CodePermissionDenied {
		t.Fatalf("resp = %+v, want permission_denied", resp)
	}
}

func TestDispatchRejections(t *testing.T) {
	h := newHarness(t)
	fault := h.seedFault(t, "vessel-1", state.FaultOpen)

	tests := []struct {
		name string
		ctx  context.Context
		req  Request
		code apperr.Code
	}{
		{
			name: "no tenant context",
			ctx:  context.Background(),
			req:  Request{Action: "reportFault"},
			code: apperr.CodePermissionDenied,
		},
		{
			name: "envelope tenant mismatch",
			ctx:  authedCtx(t, "vessel-1", "actor-1", "hod"),
			req: Request{
				Action:  "closeFault",
				Context: RequestContext{TenantID: "vessel-2"},
				Payload: map[string]any{"fault_id": fault.ID},
			},
			code: apperr.CodePermissionDenied,
		},
		{
			name: "unknown action",
			ctx:  authedCtx(t, "vessel-1", "actor-1", "hod"),
			req:  Request{Action: "scuttleShip"},
			code: apperr.CodeValidation,
		},
		{
			name: "missing required field",
			ctx:  authedCtx(t, "vessel-1", "actor-1", "crew"),
			req: Request{
				Action:  "reportFault",
				Payload: map[string]any{"title": "hydraulic leak"},
			},
			code: apperr.CodeValidation,
		},
		{
			name: "target owned by another tenant",
			ctx:  authedCtx(t, "vessel-2", "actor-1", "engineer"),
			req: Request{
				Action:  "acknowledgeFault",
				Payload: map[string]any{"fault_id": fault.ID},
			},
			code: apperr.CodeNotFound,
		},
		{
			name: "illegal transition",
			ctx:  authedCtx(t, "vessel-1", "actor-1", "hod"),
			req: Request{
				Action:  "closeFault",
				Payload: map[string]any{"fault_id": fault.ID},
			},
			code: apperr.CodeIllegalTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.engine.Dispatch(tt.ctx, tt.req)
			if resp.Success {
				t.Fatal("dispatch unexpectedly succeeded")
			}
			if resp.ErrorCode != tt.code {
				t.Errorf("code = %s, want %s", resp.ErrorCode, tt.code)
			}
		})
	}

	// Nothing above wrote a ledger row.
	all, _ := h.ledger.AllForTenant(context.Background(), "vessel-1")
	if len(all) != 0 {
		t.Errorf("rejected dispatches wrote %d ledger rows", len(all))
	}
}

func TestDispatchSignedAction(t *testing.T) {
	h := newHarness(t)
	fault := h.seedFault(t, "vessel-1", state.FaultOpen)
	ctx := authedCtx(t, "vessel-1", "actor-hod", "hod")

	sig := signature.New("markFalseAlarm", "actor-hod", "hod", []string{fault.Ref().String()})
	resp := h.engine.Dispatch(ctx, Request{
		Action: "markFalseAlarm",
		Payload: map[string]any{
			"fault_id": fault.ID,
			"reason":   "sensor fault, confirmed by duplicate reading",
			"signature": map[string]any{
				"actor_id":     sig.ActorID,
				"claimed_role": sig.ClaimedRole,
				"action":       sig.Action,
				"entity_refs":  []any{fault.Ref().String()},
				"content_hash": sig.ContentHash,
				"signed_at":    sig.SignedAt,
			},
		},
	})
	if !resp.Success {
		t.Fatalf("Dispatch failed: %s %s", resp.ErrorCode, resp.Message)
	}
	if resp.Entity.Status != state.FaultFalseAlarm {
		t.Errorf("status = %s, want %s", resp.Entity.Status, state.FaultFalseAlarm)
	}

	history, _ := h.ledger.HistoryFor(context.Background(), "vessel-1", fault.Ref(), 0)
	if len(history) != 1 || !history[0].Signed() {
		t.Fatalf("expected one signed ledger row, got %+v", history)
	}

	// false_alarm is terminal with no exit: even a signed reopen is illegal.
	reopen := signature.New("reopenFault", "actor-hod", "hod", []string{fault.Ref().String()})
	resp = h.engine.Dispatch(ctx, Request{
		Action: "reopenFault",
		Payload: map[string]any{
			"fault_id": fault.ID,
			"reason":   "second opinion requested",
			"signature": map[string]any{
				"actor_id":     reopen.ActorID,
				"claimed_role": reopen.ClaimedRole,
				"action":       reopen.Action,
				"entity_refs":  []any{fault.Ref().String()},
				"content_hash": reopen.ContentHash,
				"signed_at":    reopen.SignedAt,
			},
		},
	})
	if resp.Success || resp.ErrorCode != apperr.CodeIllegalTransition {
		t.Fatalf("resp = %+v, want illegal_transition", resp)
	}
}

func TestDispatchSignedActionMissingSignature(t *testing.T) {
	h := newHarness(t)
	fault := h.seedFault(t, "vessel-1", state.FaultOpen)
	ctx := authedCtx(t, "vessel-1", "actor-hod", "hod")

	resp := h.engine.Dispatch(ctx, Request{
		Action: "markFalseAlarm",
		Payload: map[string]any{
			"fault_id": fault.ID,
			"reason":   "sensor fault, confirmed by duplicate reading",
		},
	})
	if resp.Success || resp.ErrorCode != apperr.CodeValidation {
		t.Fatalf("resp = %+v, want validation_error", resp)
	}
}

func TestDispatchIdempotentRepeat(t *testing.T) {
	h := newHarness(t)
	fault := h.seedFault(t, "vessel-1", state.FaultOpen)
	ctx := authedCtx(t, "vessel-1", "actor-eng", "engineer")

	req := Request{
		Action:  "acknowledgeFault",
		Payload: map[string]any{"fault_id": fault.ID},
	}
	first := h.engine.Dispatch(ctx, req)
	if !first.Success || first.NoOp {
		t.Fatalf("first = %+v", first)
	}
	second := h.engine.Dispatch(ctx, req)
	if !second.Success || !second.NoOp {
		t.Fatalf("second = %+v, want no-op success", second)
	}

	history, _ := h.ledger.HistoryFor(context.Background(), "vessel-1", fault.Ref(), 0)
	if len(history) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(history))
	}
}

// Racing dispatches of the same transition both succeed, but exactly one
// writes the authoritative ledger row. The executor re-checks legality
// inside its critical section, so the loser sees the target state already
// reached and reports a no-op.
func TestDispatchConcurrentSameTarget(t *testing.T) {
	h := newHarness(t)
	fault := h.seedFault(t, "vessel-1", state.FaultResolved)

	ctxs := []context.Context{
		authedCtx(t, "vessel-1", "actor-hod-1", "hod"),
		authedCtx(t, "vessel-1", "actor-hod-2", "hod"),
	}
	responses := make([]Response, len(ctxs))
	var wg sync.WaitGroup
	for i, ctx := range ctxs {
		wg.Add(1)
		go func(idx int, ctx context.Context) {
			defer wg.Done()
			responses[idx] = h.engine.Dispatch(ctx, Request{
				Action:  "closeFault",
				Payload: map[string]any{"fault_id": fault.ID},
			})
		}(i, ctx)
	}
	wg.Wait()

	transitions := 0
	for i, resp := range responses {
		if !resp.Success {
			t.Fatalf("dispatch %d failed: %s %s", i, resp.ErrorCode, resp.Message)
		}
		if resp.Entity == nil || resp.Entity.Status != state.FaultClosed {
			t.Errorf("dispatch %d entity = %+v, want closed", i, resp.Entity)
		}
		if !resp.NoOp {
			transitions++
		}
	}
	if transitions != 1 {
		t.Errorf("transitions = %d, want exactly 1 (the rest no-ops)", transitions)
	}

	history, err := h.ledger.HistoryFor(context.Background(), "vessel-1", fault.Ref(), 0)
	if err != nil {
		t.Fatalf("HistoryFor: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(history))
	}
}

func TestDispatchCompound(t *testing.T) {
	h := newHarness(t)
	fault := h.seedFault(t, "vessel-1", state.FaultInvestigating)
	ctx := authedCtx(t, "vessel-1", "actor-hod", "hod")

	sig := signature.New("createWorkOrderFromFault", "actor-hod", "hod", []string{fault.Ref().String()})
	resp := h.engine.Dispatch(ctx, Request{
		Action: "createWorkOrderFromFault",
		Payload: map[string]any{
			"fault_id":    fault.ID,
			"title":       "renew steering pump seals",
			"description": "replace shaft seals on steering gear pump 1",
			"signature": map[string]any{
				"actor_id":     sig.ActorID,
				"claimed_role": sig.ClaimedRole,
				"action":       sig.Action,
				"entity_refs":  []any{fault.Ref().String()},
				"content_hash": sig.ContentHash,
				"signed_at":    sig.SignedAt,
			},
		},
	})
	if !resp.Success {
		t.Fatalf("Dispatch failed: %s %s", resp.ErrorCode, resp.Message)
	}
	if resp.Spawned == nil || resp.Spawned.Family != entity.FamilyWorkOrder {
		t.Fatalf("spawned = %+v", resp.Spawned)
	}
	if resp.Entity.Status != state.FaultWorkOrdered {
		t.Errorf("fault status = %s", resp.Entity.Status)
	}

	all, _ := h.ledger.AllForTenant(context.Background(), "vessel-1")
	if len(all) != 2 {
		t.Errorf("ledger rows = %d, want 2", len(all))
	}
}
