package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/talentmesh/talentmesh/core"
)

// ErrInstanceNotFound is returned by stores for unknown instance IDs.
var ErrInstanceNotFound = errors.New("workflow instance not found")

// InstanceStore persists workflow instances. Put stores a full snapshot, so
// a reader never observes a half-applied transition. Terminal instances stay
// in the store until the external sweeper reclaims them via
// ListTerminalBefore.
type InstanceStore interface {
	// Put stores the instance snapshot, overwriting any previous version.
	Put(ctx context.Context, instance *core.WorkflowInstance) error

	// Get returns a copy of the instance.
	Get(ctx context.Context, instanceID string) (*core.WorkflowInstance, error)

	// ActiveByDefinition returns the session's Active instance of the given
	// definition, or nil when there is none.
	ActiveByDefinition(ctx context.Context, sessionID, definition string) (*core.WorkflowInstance, error)

	// ListBySession returns copies of all instances owned by the session in
	// creation order.
	ListBySession(ctx context.Context, sessionID string) ([]*core.WorkflowInstance, error)

	// ListTerminalBefore returns IDs of terminal instances last updated
	// before the threshold, for the retention sweeper.
	ListTerminalBefore(ctx context.Context, threshold time.Time) ([]string, error)

	// Delete removes an instance (sweeper use).
	Delete(ctx context.Context, instanceID string) error
}

// InMemoryInstanceStore is a process-local InstanceStore. Snapshots are
// cloned on the way in and out so callers can never mutate stored state.
type InMemoryInstanceStore struct {
	mu        sync.RWMutex
	instances map[string]*core.WorkflowInstance
	order     []string // creation order for deterministic listing
}

// NewInMemoryInstanceStore creates an empty store.
func NewInMemoryInstanceStore() *InMemoryInstanceStore {
	return &InMemoryInstanceStore{instances: make(map[string]*core.WorkflowInstance)}
}

// Put stores a clone of the instance snapshot.
func (s *InMemoryInstanceStore) Put(_ context.Context, instance *core.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[instance.ID]; !exists {
		s.order = append(s.order, instance.ID)
	}
	s.instances[instance.ID] = instance.Clone()
	return nil
}

// Get returns a clone of the stored instance.
func (s *InMemoryInstanceStore) Get(_ context.Context, instanceID string) (*core.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wi, ok := s.instances[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return wi.Clone(), nil
}

// ActiveByDefinition scans the session's instances for an Active one of the
// given definition.
func (s *InMemoryInstanceStore) ActiveByDefinition(_ context.Context, sessionID, definition string) (*core.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		wi := s.instances[id]
		if wi.SessionID == sessionID && wi.Definition == definition && wi.Status == core.StatusActive {
			return wi.Clone(), nil
		}
	}
	return nil, nil
}

// ListBySession returns clones of the session's instances in creation order.
func (s *InMemoryInstanceStore) ListBySession(_ context.Context, sessionID string) ([]*core.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.WorkflowInstance
	for _, id := range s.order {
		if wi := s.instances[id]; wi.SessionID == sessionID {
			out = append(out, wi.Clone())
		}
	}
	return out, nil
}

// ListTerminalBefore returns IDs of terminal instances not updated since the
// threshold.
func (s *InMemoryInstanceStore) ListTerminalBefore(_ context.Context, threshold time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range s.order {
		wi := s.instances[id]
		if wi.Status.Terminal() && wi.Updated.Before(threshold) {
			out = append(out, id)
		}
	}
	return out, nil
}

// Delete removes an instance.
func (s *InMemoryInstanceStore) Delete(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[instanceID]; !ok {
		return ErrInstanceNotFound
	}
	delete(s.instances, instanceID)
	for i, id := range s.order {
		if id == instanceID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
