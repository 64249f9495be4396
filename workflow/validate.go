package workflow

import (
	"fmt"

	"github.com/talentmesh/talentmesh/core"
)

// DefinitionError reports an invalid workflow definition at load time. The
// failure is fatal only for this definition; other definitions load
// normally.
type DefinitionError struct {
	Definition string
	Message    string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow definition %q: %s", e.Definition, e.Message)
}

// Validate checks the definition's structural invariants and returns
// warnings for constructs that are legal but hazardous (overlapping guards
// resolved by declaration order). The error is non-nil for:
//   - empty name, state set or terminal set
//   - initial or terminal states outside the state set
//   - transitions referencing unknown states or empty events
//   - states unreachable from the initial state
//   - reachable states from which no terminal state can be reached
//   - two unguarded transitions sharing From and Event (the second could
//     never fire)
func (d *Definition) Validate() ([]string, error) {
	fail := func(format string, args ...any) error {
		return &DefinitionError{Definition: d.Name, Message: fmt.Sprintf(format, args...)}
	}

	if d.Name == "" {
		return nil, &DefinitionError{Definition: "(unnamed)", Message: "name must not be empty"}
	}
	if len(d.States) == 0 {
		return nil, fail("state set must not be empty")
	}
	if len(d.Terminals) == 0 {
		return nil, fail("terminal set must not be empty")
	}
	if !d.HasState(d.Initial) {
		return nil, fail("initial state %q is not in the state set", d.Initial)
	}
	for _, t := range d.Terminals {
		if !d.HasState(t) {
			return nil, fail("terminal state %q is not in the state set", t)
		}
	}

	seen := make(map[core.StateID]bool, len(d.States))
	for _, s := range d.States {
		if seen[s] {
			return nil, fail("state %q declared twice", s)
		}
		seen[s] = true
	}

	type fromEvent struct {
		from  core.StateID
		event string
	}
	unguarded := make(map[fromEvent]int)
	guarded := make(map[fromEvent]int)
	for _, tr := range d.Transitions {
		if tr.Event == "" {
			return nil, fail("transition %q -> %q has an empty event", tr.From, tr.To)
		}
		if !d.HasState(tr.From) {
			return nil, fail("transition from unknown state %q", tr.From)
		}
		if !d.HasState(tr.To) {
			return nil, fail("transition to unknown state %q", tr.To)
		}
		if d.IsTerminal(tr.From) {
			return nil, fail("transition out of terminal state %q", tr.From)
		}
		key := fromEvent{tr.From, tr.Event}
		if tr.Guard == nil {
			unguarded[key]++
		} else {
			guarded[key]++
		}
	}
	for key, n := range unguarded {
		if n > 1 {
			return nil, fail("state %q has %d unguarded transitions for event %q; only the first could ever fire", key.from, n, key.event)
		}
	}

	// Forward reachability from the initial state.
	reachable := map[core.StateID]bool{d.Initial: true}
	for changed := true; changed; {
		changed = false
		for _, tr := range d.Transitions {
			if reachable[tr.From] && !reachable[tr.To] {
				reachable[tr.To] = true
				changed = true
			}
		}
	}
	for _, s := range d.States {
		if !reachable[s] {
			return nil, fail("state %q is unreachable from initial state %q", s, d.Initial)
		}
	}

	// Backward reachability: every reachable state must be able to reach a
	// terminal state.
	canFinish := make(map[core.StateID]bool)
	for _, t := range d.Terminals {
		canFinish[t] = true
	}
	for changed := true; changed; {
		changed = false
		for _, tr := range d.Transitions {
			if canFinish[tr.To] && !canFinish[tr.From] {
				canFinish[tr.From] = true
				changed = true
			}
		}
	}
	for _, s := range d.States {
		if !canFinish[s] {
			return nil, fail("state %q cannot reach any terminal state", s)
		}
	}

	// Overlapping guards are resolved by declaration order at runtime; a
	// definition author relying on overlap is flagged, not guessed at.
	var warnings []string
	for key, n := range guarded {
		if n+unguarded[key] > 1 {
			warnings = append(warnings, fmt.Sprintf(
				"state %q event %q has %d candidate transitions; declaration order is the tie-break",
				key.from, key.event, n+unguarded[key]))
		}
	}

	return warnings, nil
}
