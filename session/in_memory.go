package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/talentmesh/talentmesh/core"
)

// ErrSessionNotFound is returned by stores for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// InMemoryStore is a volatile SessionStore keeping sessions in a process
// local map, one session per participant. It is safe for concurrent access;
// every returned session is a clone so callers can never mutate stored
// state directly.
type InMemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]*core.Session
	byParticipant map[string]string // participantID -> sessionID
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:      make(map[string]*core.Session),
		byParticipant: make(map[string]string),
	}
}

// GetOrCreate returns the participant's session, creating it on first
// contact.
func (s *InMemoryStore) GetOrCreate(_ context.Context, participantID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byParticipant[participantID]; ok {
		return s.sessions[id].Clone(), nil
	}
	sess := core.NewSession(core.NewID(), participantID)
	s.sessions[sess.ID] = sess
	s.byParticipant[participantID] = sess.ID
	return sess.Clone(), nil
}

// Get returns a clone of the session.
func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Save stores a clone of the session snapshot.
func (s *InMemoryStore) Save(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	s.byParticipant[session.ParticipantID] = session.ID
	return nil
}

// Attach records instance ownership on the session.
func (s *InMemoryStore) Attach(_ context.Context, sessionID, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Attach(instanceID)
	return nil
}

// Detach removes instance ownership on termination.
func (s *InMemoryStore) Detach(_ context.Context, sessionID, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Detach(instanceID)
	return nil
}

// Touch updates the session's last-activity timestamp.
func (s *InMemoryStore) Touch(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Touch()
	return nil
}

// ListIdleSince returns IDs of sessions idle since before the threshold.
func (s *InMemoryStore) ListIdleSince(_ context.Context, threshold time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(threshold) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Delete removes a session (sweeper use).
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.byParticipant, sess.ParticipantID)
	delete(s.sessions, sessionID)
	return nil
}
