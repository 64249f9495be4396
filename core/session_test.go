package core

import (
	"testing"
	"time"
)

func TestSession_AttachDetach(t *testing.T) {
	s := NewSession("sess-1", "p1")
	s.Attach("i1")
	s.Attach("i2")
	s.Attach("i1") // duplicate attach is a no-op

	if len(s.ActiveInstances) != 2 {
		t.Fatalf("expected 2 attached instances, got %d", len(s.ActiveInstances))
	}
	if !s.HasInstance("i1") || !s.HasInstance("i2") {
		t.Error("attached instances should be reported")
	}

	s.Detach("i1")
	if s.HasInstance("i1") {
		t.Error("detached instance still reported")
	}
	if len(s.ActiveInstances) != 1 || s.ActiveInstances[0] != "i2" {
		t.Errorf("detach should preserve remaining order, got %v", s.ActiveInstances)
	}
}

func TestSession_TrailAndClone(t *testing.T) {
	s := NewSession("sess-2", "p2")
	s.AddTurn(TurnRecord{Role: "user", Text: "I want to take leave"})
	s.AddTurn(TurnRecord{Role: "agent", Text: "When?", CapabilityID: "leave_request"})
	s.AddTurn(TurnRecord{Role: "user", Text: "next week"})

	recent := s.RecentTurns(2)
	if len(recent) != 2 || recent[0].Role != "agent" || recent[1].Text != "next week" {
		t.Fatalf("RecentTurns should return newest records oldest-first, got %+v", recent)
	}

	clone := s.Clone()
	clone.SetState("k", "v")
	if _, ok := s.GetState("k"); ok {
		t.Error("clone state mutation leaked into original")
	}
}

func TestSession_TouchAdvancesActivity(t *testing.T) {
	s := NewSession("sess-3", "p3")
	before := s.LastActivity
	time.Sleep(time.Millisecond)
	s.Touch()
	if !s.LastActivity.After(before) {
		t.Error("Touch should advance LastActivity")
	}
}
