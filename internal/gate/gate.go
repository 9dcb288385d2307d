// Package gate composes the tenant context and the action registry into a
// layered accept/reject decision. Every layer is sufficient on its own to
// deny; all of them must agree before the executor runs.
package gate

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/oceanworks/deckhand/internal/action"
	"github.com/oceanworks/deckhand/internal/apperr"
	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/signature"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
	"github.com/oceanworks/deckhand/internal/validate"
)

// Predicate is a handler-level capability check evaluated at commit time,
// used for permissions derived from qualification rather than role names.
type Predicate func(tc tenant.Context) bool

// Gate performs role, schema, signature, and state checks for one action.
type Gate struct {
	predicates map[tenant.Capability]Predicate
}

// New creates a Gate with the default capability predicates.
func New() *Gate {
	return &Gate{
		predicates: map[tenant.Capability]Predicate{
			tenant.CapabilityEngineerQualified: func(tc tenant.Context) bool {
				return tc.HasCapability(tenant.CapabilityEngineerQualified)
			},
		},
	}
}

// Authorize runs the request-time layers: role membership, payload schema,
// and signature. It returns the normalized field values on success. State
// legality is checked separately against the entity once it is loaded, and
// again by the executor inside the transaction.
func (g *Gate) Authorize(def *action.Definition, tc tenant.Context, payload map[string]any, sig signature.Payload) (map[string]string, error) {
	// Layer 1: registry role check. Deny-by-default; an empty intersection
	// denies before anything else is examined.
	if !tc.HasAnyRole(def.AllowedRoles) {
		return nil, apperr.Newf(apperr.CodePermissionDenied, "role not permitted to perform %s", def.Name)
	}

	fields, err := g.validateFields(def, payload)
	if err != nil {
		return nil, err
	}

	if err := g.checkSignature(def, tc, sig); err != nil {
		return nil, err
	}

	return fields, nil
}

// CommitGuard returns the commit-time predicate for the action, or nil when
// the action needs none. The executor evaluates it inside the transaction.
func (g *Gate) CommitGuard(def *action.Definition, tc tenant.Context) func() error {
	if def.Capability == "" {
		return nil
	}
	pred, ok := g.predicates[def.Capability]
	if !ok {
		// An unknown capability can never be satisfied.
		return func() error {
			return apperr.Newf(apperr.CodePermissionDenied, "capability %s is not recognized", def.Capability)
		}
	}
	return func() error {
		if !pred(tc) {
			return apperr.Newf(apperr.CodePermissionDenied, "actor lacks capability %s", def.Capability)
		}
		return nil
	}
}

// CheckState verifies the entity's current status against the action's legal
// source states via the family machine.
func (g *Gate) CheckState(m *state.Machine, def *action.Definition, current entity.Status) (state.Result, entity.Status, error) {
	result, next, err := m.Eval(current, def.Name)
	if err != nil {
		return state.ResultIllegal, "", apperr.Wrap("failed to evaluate transition", err)
	}
	if result == state.ResultIllegal {
		return result, "", apperr.Newf(apperr.CodeIllegalTransition, "%s is not legal from status %s", def.Name, current)
	}
	return result, next, nil
}

// validateFields checks presence, type, and length of every declared field
// and rejects fields outside the schema. Values are normalized to strings.
func (g *Gate) validateFields(def *action.Definition, payload map[string]any) (map[string]string, error) {
	fields := make(map[string]string, len(payload))

	for _, spec := range def.Required {
		raw, ok := payload[spec.Name]
		if !ok {
			return nil, apperr.Newf(apperr.CodeValidation, "field %s is required", spec.Name)
		}
		v, err := normalizeField(spec, raw)
		if err != nil {
			return nil, err
		}
		fields[spec.Name] = v
	}

	for _, spec := range def.Optional {
		raw, ok := payload[spec.Name]
		if !ok {
			continue
		}
		v, err := normalizeField(spec, raw)
		if err != nil {
			return nil, err
		}
		fields[spec.Name] = v
	}

	for name := range payload {
		if name == "signature" {
			continue
		}
		if _, ok := def.Field(name); !ok {
			return nil, apperr.Newf(apperr.CodeValidation, "field %s is not part of action %s", name, def.Name)
		}
	}

	return fields, nil
}

// checkSignature enforces the signed-action rules: a well-formed payload must
// be present, its claimed role must be one the actor actually holds, and its
// content hash must cover this action.
func (g *Gate) checkSignature(def *action.Definition, tc tenant.Context, sig signature.Payload) error {
	if !def.RequiresSignature {
		// Unsigned actions must not smuggle a signature; the ledger records
		// the canonical empty value for them.
		if !sig.IsEmpty() {
			return apperr.Newf(apperr.CodeValidation, "action %s does not take a signature", def.Name)
		}
		return nil
	}

	if sig.IsEmpty() {
		return apperr.Newf(apperr.CodeValidation, "action %s requires a signature", def.Name)
	}
	if err := sig.Validate(); err != nil {
		return apperr.Newf(apperr.CodeValidation, "signature is malformed: %v", err)
	}
	if sig.Action != def.Name {
		return apperr.Newf(apperr.CodePermissionDenied, "signature covers action %s, not %s", sig.Action, def.Name)
	}
	if sig.ActorID != tc.ActorID {
		return apperr.New(apperr.CodePermissionDenied, "signature actor does not match the caller")
	}
	if !tc.HasRole(tenant.Role(sig.ClaimedRole)) {
		return apperr.Newf(apperr.CodePermissionDenied, "signature claims role %s the caller does not hold", sig.ClaimedRole)
	}
	if err := sig.VerifyHash(); err != nil {
		return apperr.New(apperr.CodePermissionDenied, "signature content hash does not verify")
	}
	return nil
}

func normalizeField(spec action.FieldSpec, raw any) (string, error) {
	switch spec.Type {
	case action.FieldString:
		s, ok := raw.(string)
		if !ok {
			return "", apperr.Newf(apperr.CodeValidation, "field %s must be a string", spec.Name)
		}
		validated, err := validate.String(s, validate.StringConstraints{
			MinLength:  spec.MinLen,
			MaxLength:  spec.MaxLen,
			AllowEmpty: spec.MinLen == 0,
			TrimSpace:  true,
		})
		if err != nil {
			return "", apperr.Newf(apperr.CodeValidation, "field %s: %v", spec.Name, err)
		}
		return validated, nil

	case action.FieldUUID:
		s, ok := raw.(string)
		if !ok {
			return "", apperr.Newf(apperr.CodeValidation, "field %s must be a string", spec.Name)
		}
		if _, err := uuid.Parse(s); err != nil {
			return "", apperr.Newf(apperr.CodeValidation, "field %s must be a valid uuid", spec.Name)
		}
		return s, nil

	case action.FieldTimestamp:
		s, ok := raw.(string)
		if !ok {
			return "", apperr.Newf(apperr.CodeValidation, "field %s must be an RFC 3339 timestamp", spec.Name)
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return "", apperr.Newf(apperr.CodeValidation, "field %s must be an RFC 3339 timestamp", spec.Name)
		}
		return s, nil

	case action.FieldInt:
		switch v := raw.(type) {
		case float64:
			if v != float64(int64(v)) {
				return "", apperr.Newf(apperr.CodeValidation, "field %s must be an integer", spec.Name)
			}
			return strconv.FormatInt(int64(v), 10), nil
		case string:
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return "", apperr.Newf(apperr.CodeValidation, "field %s must be an integer", spec.Name)
			}
			return v, nil
		default:
			return "", apperr.Newf(apperr.CodeValidation, "field %s must be an integer", spec.Name)
		}

	default:
		return "", apperr.Wrap(fmt.Sprintf("unhandled field type %s", spec.Type), nil)
	}
}
