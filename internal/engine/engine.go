// Package engine dispatches action requests: it resolves the action
// definition, runs the permission gate, hands the authorized plan to the
// executor, and fans out notifications for committed changes. The engine is
// the only path by which entity state changes.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/oceanworks/deckhand/internal/action"
	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/executor"
	"github.com/oceanworks/deckhand/internal/gate"
	"github.com/oceanworks/deckhand/internal/notify"
	"github.com/oceanworks/deckhand/internal/signature"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// Request is the action envelope submitted by a client.
type Request struct {
	Action  string         `json:"action"`
	Context RequestContext `json:"context"`
	Payload map[string]any `json:"payload"`
}

// RequestContext carries the envelope's claimed scope and correlation
// metadata. The tenant id here is advisory only: it must match the verified
// tenant context or the request is rejected, and it is never used for
// scoping.
type RequestContext struct {
	TenantID  string `json:"tenant_id"`
	RequestID string `json:"request_id,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// Response is the dispatch result envelope.
type Response struct {
	Success   bool           `json:"success"`
	NoOp      bool           `json:"no_op,omitempty"`
	Entity    *entity.Entity `json:"entity,omitempty"`
	Spawned   *entity.Entity `json:"spawned,omitempty"`
	ErrorCode apperr.Code    `json:"error_code,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Engine wires the registry, gate, and executor into one dispatch path.
type Engine struct {
	registry *action.Registry
	gate     *gate.Gate
	machines *state.Machines
	store    entity.Store
	exec     executor.Executor
	notifier notify.Notifier
	metrics  *Metrics
	logger   *slog.Logger
}

// Config collects the engine's dependencies. Notifier and Metrics are
// optional.
type Config struct {
	Registry *action.Registry
	Gate     *gate.Gate
	Machines *state.Machines
	Store    entity.Store
	Executor executor.Executor
	Notifier notify.Notifier
	Metrics  *Metrics
	Logger   *slog.Logger
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Engine{
		registry: cfg.Registry,
		gate:     cfg.Gate,
		machines: cfg.Machines,
		store:    cfg.Store,
		exec:     cfg.Executor,
		notifier: notifier,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Dispatch runs one request end to end. It never panics or returns a Go
// error; every failure maps onto the error taxonomy in the response.
func (e *Engine) Dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := e.dispatch(ctx, req)

	outcome := OutcomeSuccess
	switch {
	case resp.Success && resp.NoOp:
		outcome = OutcomeNoOp
	case !resp.Success && resp.ErrorCode == apperr.CodePermissionDenied:
		outcome = OutcomeDenied
	case !resp.Success:
		outcome = OutcomeError
	}
	e.metrics.observe(req.Action, outcome, time.Since(start).Seconds())

	if !resp.Success {
		e.logger.InfoContext(ctx, "action rejected",
			"action", req.Action,
			"request_id", req.Context.RequestID,
			"error_code", resp.ErrorCode,
		)
	}
	return resp
}

func (e *Engine) dispatch(ctx context.Context, req Request) Response {
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return fail(apperr.New(apperr.CodePermissionDenied, "no verified tenant context"))
	}
	if req.Context.TenantID != "" && req.Context.TenantID != tc.TenantID {
		return fail(apperr.New(apperr.CodePermissionDenied, "envelope tenant does not match authenticated tenant"))
	}

	def, err := e.registry.Get(req.Action)
	if err != nil {
		return fail(apperr.Newf(apperr.CodeValidation, "unknown action %q", req.Action))
	}

	sig, err := extractSignature(req.Payload)
	if err != nil {
		return fail(apperr.New(apperr.CodeValidation, "signature is malformed"))
	}

	fields, err := e.gate.Authorize(def, tc, req.Payload, sig)
	if err != nil {
		return fail(err)
	}

	plan := executor.Plan{
		Tenant:      tc,
		Def:         def,
		Fields:      fields,
		Signature:   sig,
		RequestID:   req.Context.RequestID,
		Origin:      req.Context.Origin,
		CommitGuard: e.gate.CommitGuard(def, tc),
	}

	if !def.Creates {
		ref := entity.Ref{Family: def.Family, ID: fields[def.TargetField]}
		plan.Target = &ref

		// Fast-fail on a transition that is already illegal. The executor
		// re-evaluates under the row lock; this read is advisory.
		current, err := e.store.GetByID(ctx, tc.TenantID, ref.Family, ref.ID)
		if err != nil {
			return fail(mapStoreErr(err))
		}
		m, err := e.machines.ForFamily(def.Family)
		if err != nil {
			return fail(apperr.Wrap("no machine for family", err))
		}
		if _, _, err := e.gate.CheckState(m, def, current.Status); err != nil {
			return fail(err)
		}
	}

	out, err := e.exec.Execute(ctx, plan)
	if err != nil {
		return fail(err)
	}

	if !out.NoOp {
		e.notify(ctx, req.Action, tc, out)
	}

	return Response{
		Success: true,
		NoOp:    out.NoOp,
		Entity:  out.Entity,
		Spawned: out.Spawned,
	}
}

// notify fans out asynchronously; dispatch latency never includes delivery.
func (e *Engine) notify(ctx context.Context, actionName string, tc tenant.Context, out *executor.Outcome) {
	events := []notify.Event{{
		TenantID: tc.TenantID,
		Action:   actionName,
		Family:   out.Entity.Family,
		EntityID: out.Entity.ID,
		Status:   out.Entity.Status,
		ActorID:  tc.ActorID,
		At:       time.Now().UTC(),
	}}
	if out.Spawned != nil {
		events = append(events, notify.Event{
			TenantID: tc.TenantID,
			Action:   actionName,
			Family:   out.Spawned.Family,
			EntityID: out.Spawned.ID,
			Status:   out.Spawned.Status,
			ActorID:  tc.ActorID,
			At:       time.Now().UTC(),
		})
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		for _, ev := range events {
			e.notifier.Notify(bg, ev)
		}
	}()
}

// extractSignature decodes the optional signature object from the payload.
func extractSignature(payload map[string]any) (signature.Payload, error) {
	raw, ok := payload["signature"]
	if !ok || raw == nil {
		return signature.Empty(), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return signature.Payload{}, err
	}
	var sig signature.Payload
	if err := json.Unmarshal(data, &sig); err != nil {
		return signature.Payload{}, err
	}
	return sig, nil
}

func mapStoreErr(err error) error {
	if apperr.CodeOf(err) != apperr.CodeUnexpected {
		return err
	}
	if errors.Is(err, entity.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "entity not found")
	}
	return apperr.Wrap("load entity", err)
}

func fail(err error) Response {
	return Response{
		Success:   false,
		ErrorCode: apperr.CodeOf(err),
		Message:   apperr.MessageOf(err),
	}
}
