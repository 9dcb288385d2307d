// Package action provides the declarative catalog of every action the engine
// can execute: its payload schema, the roles allowed to invoke it, whether it
// requires a signature, and the entity states it may run from. The catalog is
// built once at process start and never mutated.
package action

import (
	"errors"
	"fmt"

	"github.com/oceanworks/deckhand/internal/entity"
	"github.com/oceanworks/deckhand/internal/state"
	"github.com/oceanworks/deckhand/internal/tenant"
)

// Common errors for registry lookups.
var (
	ErrUnknownAction = errors.New("unknown action")
)

// FieldType constrains how a payload field is validated.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldUUID      FieldType = "uuid"
	FieldTimestamp FieldType = "timestamp"
	FieldInt       FieldType = "int"
)

// FieldSpec declares one payload field with its type and length constraints.
// Length constraints apply to string fields only.
type FieldSpec struct {
	Name   string
	Type   FieldType
	MinLen int
	MaxLen int
}

// SpawnSpec describes the secondary entity a compound action creates. The
// spawned entity starts in its family's initial state; CopyFields names the
// payload fields written onto it.
type SpawnSpec struct {
	Family     entity.Family
	CopyFields []string
}

// Definition is one immutable registry entry.
type Definition struct {
	// Name is the unique action identifier used in request envelopes.
	Name string

	// Family is the entity family the action operates on.
	Family entity.Family

	// Creates marks the family's create action. Create actions have no
	// target entity and enter the family's initial state.
	Creates bool

	// TargetField is the required payload field carrying the target entity
	// id. Empty for create actions.
	TargetField string

	// Required and Optional declare the payload schema.
	Required []FieldSpec
	Optional []FieldSpec

	// AllowedRoles is the set of roles permitted to invoke the action.
	AllowedRoles []tenant.Role

	// Capability, when set, is the derived permission checked at commit time
	// in addition to role membership.
	Capability tenant.Capability

	// RequiresSignature marks actions needing a structured authorization
	// record beyond role membership.
	RequiresSignature bool

	// SourceStates is the set of entity states the action may run from,
	// derived from the family state machine. Empty for create actions.
	SourceStates []entity.Status

	// Spawns, when set, makes the action compound: it transitions the target
	// entity and creates a second entity atomically.
	Spawns *SpawnSpec
}

// Field returns the spec for a named field, searching required then optional.
func (d *Definition) Field(name string) (FieldSpec, bool) {
	for _, f := range d.Required {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range d.Optional {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Registry is the immutable action catalog.
type Registry struct {
	byName map[string]*Definition
}

// Get returns the definition for an action name.
func (r *Registry) Get(name string) (*Definition, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return d, nil
}

// All returns every definition. The slice is freshly allocated; the
// definitions themselves must not be mutated.
func (r *Registry) All() []*Definition {
	defs := make([]*Definition, 0, len(r.byName))
	for _, d := range r.byName {
		defs = append(defs, d)
	}
	return defs
}

// build validates the catalog against the state machines and derives each
// definition's source-state set from its family's transition table, keeping
// the machines as the single source of transition truth.
func build(defs []*Definition, machines *state.Machines) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Definition, len(defs))}

	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("action with empty name")
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate action %q", d.Name)
		}
		if !entity.ValidFamily(d.Family) {
			return nil, fmt.Errorf("action %q: unknown family %q", d.Name, d.Family)
		}
		if len(d.AllowedRoles) == 0 {
			return nil, fmt.Errorf("action %q: no allowed roles; deny-by-default forbids open actions", d.Name)
		}

		m, err := machines.ForFamily(d.Family)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", d.Name, err)
		}

		if d.Creates {
			if d.TargetField != "" {
				return nil, fmt.Errorf("action %q: create actions take no target", d.Name)
			}
		} else {
			if d.TargetField == "" {
				return nil, fmt.Errorf("action %q: non-create action needs a target field", d.Name)
			}
			sources, err := m.Sources(d.Name)
			if err != nil {
				return nil, fmt.Errorf("action %q: %w", d.Name, err)
			}
			d.SourceStates = sources
		}

		if d.Spawns != nil && !entity.ValidFamily(d.Spawns.Family) {
			return nil, fmt.Errorf("action %q: spawn targets unknown family %q", d.Name, d.Spawns.Family)
		}

		r.byName[d.Name] = d
	}
	return r, nil
}
