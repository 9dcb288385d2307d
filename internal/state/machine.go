// Package state defines the finite state machine for each entity family: the
// closed status set, the initial and terminal states, and the transition each
// action triggers. Transition tables are fixed at process start and queried by
// value; nothing here mutates at runtime.
package state

import (
	"errors"
	"fmt"

	"github.com/oceanworks/deckhand/internal/entity"
)

// Common errors for transition lookups.
var (
	ErrUnknownFamily = errors.New("unknown entity family")
	ErrUnknownAction = errors.New("action not part of this family's machine")
)

// Transition maps one action to its source states and single target state.
type Transition struct {
	Action string
	From   []entity.Status
	To     entity.Status
}

// Machine is the state machine for one entity family.
type Machine struct {
	family      entity.Family
	initial     entity.Status
	statuses    map[entity.Status]bool
	terminal    map[entity.Status]bool
	transitions map[string]Transition
	// exceptionEdges are the only actions allowed out of a terminal state,
	// e.g. reopening a closed fault.
	exceptionEdges map[string]bool
}

// Config declares a family machine. Terminal states with an exception edge
// list the escaping action in ExceptionEdges.
type Config struct {
	Family         entity.Family
	Initial        entity.Status
	Statuses       []entity.Status
	Terminal       []entity.Status
	Transitions    []Transition
	ExceptionEdges []string
}

// NewMachine builds and validates a family machine. Returns an error for
// transitions that reference undeclared statuses; a broken table is a startup
// defect, not a runtime condition.
func NewMachine(cfg Config) (*Machine, error) {
	m := &Machine{
		family:         cfg.Family,
		initial:        cfg.Initial,
		statuses:       make(map[entity.Status]bool, len(cfg.Statuses)),
		terminal:       make(map[entity.Status]bool, len(cfg.Terminal)),
		transitions:    make(map[string]Transition, len(cfg.Transitions)),
		exceptionEdges: make(map[string]bool, len(cfg.ExceptionEdges)),
	}

	for _, s := range cfg.Statuses {
		m.statuses[s] = true
	}
	if !m.statuses[cfg.Initial] {
		return nil, fmt.Errorf("family %s: initial status %q not declared", cfg.Family, cfg.Initial)
	}
	for _, s := range cfg.Terminal {
		if !m.statuses[s] {
			return nil, fmt.Errorf("family %s: terminal status %q not declared", cfg.Family, s)
		}
		m.terminal[s] = true
	}
	for _, tr := range cfg.Transitions {
		if _, dup := m.transitions[tr.Action]; dup {
			return nil, fmt.Errorf("family %s: duplicate transition for action %q", cfg.Family, tr.Action)
		}
		if !m.statuses[tr.To] {
			return nil, fmt.Errorf("family %s: action %q targets undeclared status %q", cfg.Family, tr.Action, tr.To)
		}
		for _, from := range tr.From {
			if !m.statuses[from] {
				return nil, fmt.Errorf("family %s: action %q sources undeclared status %q", cfg.Family, tr.Action, from)
			}
		}
		m.transitions[tr.Action] = tr
	}
	for _, a := range cfg.ExceptionEdges {
		if _, ok := m.transitions[a]; !ok {
			return nil, fmt.Errorf("family %s: exception edge %q has no transition", cfg.Family, a)
		}
		m.exceptionEdges[a] = true
	}
	return m, nil
}

// Family returns the machine's entity family.
func (m *Machine) Family() entity.Family { return m.family }

// Initial returns the designated initial status, entered only by the
// family's create action.
func (m *Machine) Initial() entity.Status { return m.initial }

// IsTerminal reports whether s is a terminal status.
func (m *Machine) IsTerminal(s entity.Status) bool { return m.terminal[s] }

// ValidStatus reports whether s belongs to the family's closed enum.
func (m *Machine) ValidStatus(s entity.Status) bool { return m.statuses[s] }

// Target returns the status an action transitions to, regardless of source.
func (m *Machine) Target(action string) (entity.Status, error) {
	tr, ok := m.transitions[action]
	if !ok {
		return "", ErrUnknownAction
	}
	return tr.To, nil
}

// Sources returns the legal source statuses for an action.
func (m *Machine) Sources(action string) ([]entity.Status, error) {
	tr, ok := m.transitions[action]
	if !ok {
		return nil, ErrUnknownAction
	}
	return append([]entity.Status(nil), tr.From...), nil
}

// Result classifies a transition evaluation.
type Result int

const (
	// ResultTransition means the action legally moves the entity to a new status.
	ResultTransition Result = iota
	// ResultNoOp means the entity is already in the action's target status.
	// Re-submission is tolerated as success without a state change.
	ResultNoOp
	// ResultIllegal means the action is not legal from the current status.
	ResultIllegal
)

// Eval evaluates an action against the entity's current status.
//
// Terminal statuses reject every action except their declared exception edge.
// An entity already in the action's target status evaluates to ResultNoOp so
// double-submission from unreliable networks stays safe. The no-op check
// looks only at the current status, never at how it was reached: reopenFault
// against a fault that is open because it was never closed is the same no-op
// as one that was just reopened.
func (m *Machine) Eval(current entity.Status, action string) (Result, entity.Status, error) {
	tr, ok := m.transitions[action]
	if !ok {
		return ResultIllegal, "", ErrUnknownAction
	}

	if current == tr.To {
		return ResultNoOp, current, nil
	}

	if m.terminal[current] && !m.exceptionEdges[action] {
		return ResultIllegal, "", nil
	}

	for _, from := range tr.From {
		if from == current {
			return ResultTransition, tr.To, nil
		}
	}
	return ResultIllegal, "", nil
}
