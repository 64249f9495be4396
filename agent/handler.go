package agent

import (
	"context"
	"sync"

	"github.com/talentmesh/talentmesh/core"
)

// Request is one capability invocation, assembled by the orchestrator: the
// user message plus extracted parameters, read-only session context and any
// grounding documents retrieval produced.
type Request struct {
	CapabilityID string
	Message      string
	Parameters   map[string]any
	Session      *core.Session
	Grounding    []core.RetrievedDocument
}

// Handler executes one capability invocation.
type Handler interface {
	Handle(ctx context.Context, req Request) (*core.Response, error)
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, req Request) (*core.Response, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req Request) (*core.Response, error) {
	return f(ctx, req)
}

// Mux maps capability IDs to their handlers. Populated at startup alongside
// the capability registry; effectively immutable afterwards.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMux creates an empty handler mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

// Register binds a handler to a capability ID, replacing any previous
// binding.
func (m *Mux) Register(capabilityID string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[capabilityID] = h
}

// Lookup returns the handler for a capability ID.
func (m *Mux) Lookup(capabilityID string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[capabilityID]
	return h, ok
}
