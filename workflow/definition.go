package workflow

import (
	"context"

	"github.com/talentmesh/talentmesh/core"
)

// Guard decides whether a transition may fire given the instance context
// merged with the incoming event payload. Guards must be pure: no side
// effects, no external calls.
type Guard func(merged map[string]any) bool

// Action is the side effect executed when a transition fires. Actions
// typically call the external capability gateway and may write results back
// into the instance context. Actions must be idempotent or protected by an
// idempotency key, since the transition level offers at-least-once
// semantics: a transient failure leaves the instance in its pre-transition
// state and the caller may replay the event.
type Action func(ctx context.Context, instance *core.WorkflowInstance, payload map[string]any) error

// Transition connects two states through an event. GuardName and ActionName
// carry the catalog names for diagnostics and for definitions loaded from
// YAML; a nil Guard always fires, a nil Action does nothing.
type Transition struct {
	From       core.StateID
	Event      string
	Guard      Guard
	GuardName  string
	Action     Action
	ActionName string
	To         core.StateID
}

// ConflictPolicy controls what happens when a session starts a definition it
// already has an active instance of.
type ConflictPolicy string

const (
	// ConflictSingleActive rejects the second start with a ConflictError.
	ConflictSingleActive ConflictPolicy = "single-active"
	// ConflictResume returns the already-active instance instead.
	ConflictResume ConflictPolicy = "resume"
)

// Definition is a declarative state machine loaded at startup and immutable
// at runtime. Transition order is significant: when several transitions
// share From and Event, declaration order is the only disambiguator.
type Definition struct {
	Name        string
	States      []core.StateID
	Initial     core.StateID
	Terminals   []core.StateID
	Transitions []Transition
	Conflict    ConflictPolicy
}

// HasState reports membership in the definition's state set.
func (d *Definition) HasState(s core.StateID) bool {
	for _, st := range d.States {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state belongs to the terminal set.
func (d *Definition) IsTerminal(s core.StateID) bool {
	for _, t := range d.Terminals {
		if t == s {
			return true
		}
	}
	return false
}

// transitionsFor returns the transitions leaving state for event, preserving
// declaration order.
func (d *Definition) transitionsFor(state core.StateID, event string) []Transition {
	var out []Transition
	for _, tr := range d.Transitions {
		if tr.From == state && tr.Event == event {
			out = append(out, tr)
		}
	}
	return out
}
