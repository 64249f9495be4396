package workflow

import (
	"strings"
	"testing"

	"github.com/talentmesh/talentmesh/core"
)

func validDefinition() *Definition {
	return &Definition{
		Name:      "leaveRequest",
		States:    []core.StateID{"Submitted", "Approved", "Rejected", "Completed"},
		Initial:   "Submitted",
		Terminals: []core.StateID{"Completed", "Rejected"},
		Transitions: []Transition{
			{From: "Submitted", Event: "approve", To: "Approved"},
			{From: "Submitted", Event: "reject", To: "Rejected"},
			{From: "Approved", Event: "complete", To: "Completed"},
		},
	}
}

func TestValidate_AcceptsWellFormedDefinition(t *testing.T) {
	warnings, err := validDefinition().Validate()
	if err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestValidate_RejectsUnreachableState(t *testing.T) {
	d := validDefinition()
	d.States = append(d.States, "Orphan")
	_, err := d.Validate()
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected unreachable state error, got %v", err)
	}
}

func TestValidate_RejectsStateWithNoPathToTerminal(t *testing.T) {
	d := validDefinition()
	d.States = append(d.States, "Stuck")
	d.Transitions = append(d.Transitions, Transition{From: "Submitted", Event: "stall", To: "Stuck"})
	_, err := d.Validate()
	if err == nil || !strings.Contains(err.Error(), "cannot reach any terminal") {
		t.Fatalf("expected terminal reachability error, got %v", err)
	}
}

func TestValidate_RejectsMissingTerminals(t *testing.T) {
	d := validDefinition()
	d.Terminals = nil
	if _, err := d.Validate(); err == nil {
		t.Fatal("definition without terminals must be rejected")
	}
}

func TestValidate_RejectsUnknownInitial(t *testing.T) {
	d := validDefinition()
	d.Initial = "Nowhere"
	if _, err := d.Validate(); err == nil {
		t.Fatal("unknown initial state must be rejected")
	}
}

func TestValidate_RejectsDuplicateUnguardedTransitions(t *testing.T) {
	d := validDefinition()
	d.Transitions = append(d.Transitions, Transition{From: "Submitted", Event: "approve", To: "Rejected"})
	_, err := d.Validate()
	if err == nil || !strings.Contains(err.Error(), "unguarded") {
		t.Fatalf("duplicate unguarded transitions must be rejected, got %v", err)
	}
}

func TestValidate_RejectsTransitionOutOfTerminal(t *testing.T) {
	d := validDefinition()
	d.Transitions = append(d.Transitions, Transition{From: "Completed", Event: "reopen", To: "Submitted"})
	if _, err := d.Validate(); err == nil {
		t.Fatal("transition out of a terminal state must be rejected")
	}
}

func TestValidate_WarnsOnOverlappingGuards(t *testing.T) {
	d := validDefinition()
	always := func(map[string]any) bool { return true }
	d.Transitions = append(d.Transitions,
		Transition{From: "Approved", Event: "complete", Guard: always, GuardName: "always", To: "Rejected"},
	)
	warnings, err := d.Validate()
	if err != nil {
		t.Fatalf("overlap should warn, not fail: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "declaration order") {
		t.Fatalf("expected declaration-order warning, got %v", warnings)
	}
}
