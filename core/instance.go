package core

import "time"

// StateID names a state inside a workflow definition.
type StateID string

// InstanceStatus is the lifecycle status of a workflow instance.
type InstanceStatus string

const (
	// StatusActive marks an instance that can still accept events.
	StatusActive InstanceStatus = "active"
	// StatusCompleted marks an instance that reached a terminal state.
	StatusCompleted InstanceStatus = "completed"
	// StatusFailed marks an instance stopped by a permanent action failure.
	StatusFailed InstanceStatus = "failed"
	// StatusCancelled marks an instance cancelled by an explicit request.
	StatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s InstanceStatus) Terminal() bool { return s != StatusActive }

// HistoryEntry records one applied transition (or terminal status change).
// History is append-only and total-ordered by Seq; Seq starts at 1.
type HistoryEntry struct {
	Seq       int       `json:"seq"`
	Event     string    `json:"event"`
	From      StateID   `json:"from"`
	To        StateID   `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"` // failure reason, cancel reason
}

// WorkflowInstance is one running execution of a workflow definition, owned
// by exactly one session. Current is always a member of the definition's
// state set and always equals the To state of the last history entry (or the
// definition's initial state while history is empty), so state is derivable
// from history replay.
//
// Instances are mutated only by the workflow engine under the owning
// session's lock; everything else sees clones.
type WorkflowInstance struct {
	ID         string         `json:"id"`
	Definition string         `json:"definition"`
	SessionID  string         `json:"session_id"`
	Current    StateID        `json:"current"`
	Context    map[string]any `json:"context"`
	History    []HistoryEntry `json:"history"`
	Status     InstanceStatus `json:"status"`
	Created    time.Time      `json:"created"`
	Updated    time.Time      `json:"updated"`
}

// NewWorkflowInstance creates an Active instance in the given initial state.
func NewWorkflowInstance(definition, sessionID string, initial StateID, initialContext map[string]any) *WorkflowInstance {
	now := time.Now().UTC()
	ctx := make(map[string]any, len(initialContext))
	for k, v := range initialContext {
		ctx[k] = v
	}
	return &WorkflowInstance{
		ID:         NewID(),
		Definition: definition,
		SessionID:  sessionID,
		Current:    initial,
		Context:    ctx,
		Status:     StatusActive,
		Created:    now,
		Updated:    now,
	}
}

// AppendHistory appends an entry with the next sequence number and moves
// Current to the entry's To state.
func (wi *WorkflowInstance) AppendHistory(event string, from, to StateID, note string) {
	wi.History = append(wi.History, HistoryEntry{
		Seq:       len(wi.History) + 1,
		Event:     event,
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
		Note:      note,
	})
	wi.Current = to
	wi.Updated = time.Now().UTC()
}

// Clone returns a deep copy safe for independent reading.
func (wi *WorkflowInstance) Clone() *WorkflowInstance {
	clone := *wi
	clone.Context = make(map[string]any, len(wi.Context))
	for k, v := range wi.Context {
		clone.Context[k] = v
	}
	clone.History = make([]HistoryEntry, len(wi.History))
	copy(clone.History, wi.History)
	return &clone
}

// InstanceSummary is the compact instance view returned over the external
// request/response API.
type InstanceSummary struct {
	ID         string         `json:"id"`
	Definition string         `json:"definition"`
	Current    StateID        `json:"current"`
	Status     InstanceStatus `json:"status"`
	HistoryLen int            `json:"history_len"`
	Updated    time.Time      `json:"updated"`
}

// Summary projects the instance onto its API summary form.
func (wi *WorkflowInstance) Summary() InstanceSummary {
	return InstanceSummary{
		ID:         wi.ID,
		Definition: wi.Definition,
		Current:    wi.Current,
		Status:     wi.Status,
		HistoryLen: len(wi.History),
		Updated:    wi.Updated,
	}
}
