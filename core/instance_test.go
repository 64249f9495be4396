package core

import "testing"

func TestWorkflowInstance_AppendHistory(t *testing.T) {
	wi := NewWorkflowInstance("leaveRequest", "s1", "Submitted", map[string]any{"from": "2025-01-15"})
	if wi.Status != StatusActive {
		t.Fatalf("new instance should be active, got %s", wi.Status)
	}
	if wi.Current != "Submitted" {
		t.Fatalf("expected initial state Submitted, got %s", wi.Current)
	}

	wi.AppendHistory("approve", "Submitted", "Approved", "")
	if wi.Current != "Approved" {
		t.Errorf("Current should follow last history entry, got %s", wi.Current)
	}
	if len(wi.History) != 1 || wi.History[0].Seq != 1 {
		t.Fatalf("expected single entry with seq 1, got %+v", wi.History)
	}

	wi.AppendHistory("complete", "Approved", "Completed", "")
	if wi.History[1].Seq != 2 {
		t.Errorf("sequence numbers must increase, got %d", wi.History[1].Seq)
	}
	if wi.Current != StateID(wi.History[len(wi.History)-1].To) {
		t.Error("Current must always equal history.last.To")
	}
}

func TestWorkflowInstance_CloneIsIndependent(t *testing.T) {
	wi := NewWorkflowInstance("onboarding", "s1", "Created", nil)
	wi.Context["employee"] = "e42"

	clone := wi.Clone()
	clone.Context["employee"] = "other"
	clone.AppendHistory("start", "Created", "DocsRequested", "")

	if wi.Context["employee"] != "e42" {
		t.Error("clone context mutation leaked into original")
	}
	if len(wi.History) != 0 {
		t.Error("clone history mutation leaked into original")
	}
}

func TestInstanceStatus_Terminal(t *testing.T) {
	if StatusActive.Terminal() {
		t.Error("active must not be terminal")
	}
	for _, s := range []InstanceStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
