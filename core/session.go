package core

import (
	"context"
	"sync"
	"time"
)

// TurnRecord is one entry of a session's conversational trail. The trail
// feeds conversation context into intent classification and capability
// answers; it is not the workflow audit log (that lives on instances).
type TurnRecord struct {
	Role         string    `json:"role"` // "user" or "agent"
	Text         string    `json:"text"`
	CapabilityID string    `json:"capability_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Session is the durable identity of one ongoing conversation. It owns zero
// or more active workflow instances (by ID, in attach order) plus free-form
// conversational state. Safe for concurrent reads; all mutation of a
// session's attached instances is serialized per session by the
// orchestrator.
type Session struct {
	ID              string         `json:"id"`
	ParticipantID   string         `json:"participant_id"`
	Created         time.Time      `json:"created"`
	LastActivity    time.Time      `json:"last_activity"`
	ActiveInstances []string       `json:"active_instances"`
	State           map[string]any `json:"state"`
	Trail           []TurnRecord   `json:"trail,omitempty"`

	mu sync.RWMutex
}

// NewSession creates an empty session for the given participant.
func NewSession(id, participantID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            id,
		ParticipantID: participantID,
		Created:       now,
		LastActivity:  now,
		State:         map[string]any{},
	}
}

// Attach records ownership of a workflow instance. Attaching an already
// attached instance is a no-op.
func (s *Session) Attach(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ActiveInstances {
		if id == instanceID {
			return
		}
	}
	s.ActiveInstances = append(s.ActiveInstances, instanceID)
	s.LastActivity = time.Now().UTC()
}

// Detach removes an instance from the active set, preserving order of the
// remaining entries.
func (s *Session) Detach(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.ActiveInstances {
		if id == instanceID {
			s.ActiveInstances = append(s.ActiveInstances[:i], s.ActiveInstances[i+1:]...)
			break
		}
	}
	s.LastActivity = time.Now().UTC()
}

// HasInstance reports whether the instance is attached.
func (s *Session) HasInstance(instanceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.ActiveInstances {
		if id == instanceID {
			return true
		}
	}
	return false
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now().UTC()
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair in session state.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.LastActivity = time.Now().UTC()
}

// AddTurn appends a record to the conversational trail.
func (s *Session) AddTurn(rec TurnRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.Trail = append(s.Trail, rec)
	s.LastActivity = rec.Timestamp
}

// RecentTurns returns up to n most recent trail records, oldest first.
func (s *Session) RecentTurns(n int) []TurnRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.Trail) == 0 {
		return nil
	}
	start := len(s.Trail) - n
	if start < 0 {
		start = 0
	}
	out := make([]TurnRecord, len(s.Trail)-start)
	copy(out, s.Trail[start:])
	return out
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:              s.ID,
		ParticipantID:   s.ParticipantID,
		Created:         s.Created,
		LastActivity:    s.LastActivity,
		ActiveInstances: make([]string, len(s.ActiveInstances)),
		State:           make(map[string]any, len(s.State)),
		Trail:           make([]TurnRecord, len(s.Trail)),
	}
	copy(clone.ActiveInstances, s.ActiveInstances)
	copy(clone.Trail, s.Trail)
	for k, v := range s.State {
		clone.State[k] = v
	}
	return clone
}

// SessionStore persists sessions and their instance attachments. Idle
// sessions are reclaimed by an external sweeper, which discovers candidates
// through ListIdleSince; the store itself never expires anything.
type SessionStore interface {
	// GetOrCreate returns the session owned by the participant, creating it
	// on first contact.
	GetOrCreate(ctx context.Context, participantID string) (*Session, error)

	// Get returns a session by its ID.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Save persists the session snapshot.
	Save(ctx context.Context, session *Session) error

	// Attach records instance ownership on the session.
	Attach(ctx context.Context, sessionID, instanceID string) error

	// Detach removes instance ownership on termination.
	Detach(ctx context.Context, sessionID, instanceID string) error

	// Touch updates the session's last-activity timestamp.
	Touch(ctx context.Context, sessionID string) error

	// ListIdleSince returns IDs of sessions whose last activity predates the
	// threshold.
	ListIdleSince(ctx context.Context, threshold time.Time) ([]string, error)
}
