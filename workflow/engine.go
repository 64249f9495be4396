package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/logging"
)

// Options configures an Engine.
type Options struct {
	// Store persists workflow instances. Defaults to in-memory.
	Store InstanceStore
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Engine executes workflow definitions as finite state machines, one
// instance per active process. The engine itself holds no per-session
// locking; the orchestrator serializes all mutation of a session's
// instances, so two events for the same conversation never interleave.
type Engine struct {
	mu          sync.RWMutex
	definitions map[string]*Definition

	store  InstanceStore
	logger logging.Logger
}

// New creates an Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Store:  NewInMemoryInstanceStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		definitions: make(map[string]*Definition),
		store:       opts.Store,
		logger:      opts.Logger,
	}
}

// RegisterDefinition validates and registers a definition. A validation
// failure is fatal for this definition only; the engine keeps serving the
// rest. Validation warnings (overlapping guards) are logged, not fatal.
func (e *Engine) RegisterDefinition(d *Definition) error {
	warnings, err := d.Validate()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		e.logger.Warn("workflow.definition.warning", "definition", d.Name, "warning", w)
	}
	if d.Conflict == "" {
		d.Conflict = ConflictSingleActive
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.definitions[d.Name]; exists {
		return &DefinitionError{Definition: d.Name, Message: "already registered"}
	}
	e.definitions[d.Name] = d
	e.logger.Info("workflow.definition.registered", "definition", d.Name, "states", len(d.States), "transitions", len(d.Transitions))
	return nil
}

// Definition returns a registered definition by name.
func (e *Engine) Definition(name string) (*Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.definitions[name]
	return d, ok
}

// Definitions returns the names of all registered definitions.
func (e *Engine) Definitions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.definitions))
	for name := range e.definitions {
		names = append(names, name)
	}
	return names
}

// Store exposes the instance store for listing and sweeping.
func (e *Engine) Store() InstanceStore { return e.store }

// Start creates a new instance of the named definition in its initial
// state. When the owning session already has an Active instance of the same
// definition, the definition's conflict policy decides: single-active
// returns a ConflictError, resume returns the existing instance.
func (e *Engine) Start(ctx context.Context, sessionID, definitionName string, initialContext map[string]any) (*core.WorkflowInstance, error) {
	def, ok := e.Definition(definitionName)
	if !ok {
		return nil, &core.UnknownWorkflowError{Name: definitionName}
	}

	existing, err := e.store.ActiveByDefinition(ctx, sessionID, definitionName)
	if err != nil {
		return nil, fmt.Errorf("checking active instances: %w", err)
	}
	if existing != nil {
		if def.Conflict == ConflictResume {
			e.logger.Debug("workflow.start.resumed", "definition", definitionName, "instance_id", existing.ID)
			return existing, nil
		}
		return nil, &core.ConflictError{SessionID: sessionID, Definition: definitionName, InstanceID: existing.ID}
	}

	wi := core.NewWorkflowInstance(definitionName, sessionID, def.Initial, initialContext)
	wi.AppendHistory("start", def.Initial, def.Initial, "")
	if err := e.store.Put(ctx, wi); err != nil {
		return nil, fmt.Errorf("persisting new instance: %w", err)
	}
	e.logger.Info("workflow.started", "definition", definitionName, "instance_id", wi.ID, "session_id", sessionID, "state", string(wi.Current))
	return wi.Clone(), nil
}

// Advance applies one event to an instance. Transitions leaving the current
// state for the event are evaluated in declaration order against the
// instance context merged with the payload; the first transition whose
// guard passes fires. Semantics:
//   - no transition matches: NoMatchingTransitionError, instance unchanged
//   - action fails transiently: instance unchanged, caller may replay the
//     event (actions must be idempotent or carry an idempotency key)
//   - action fails permanently: instance moves to Failed, reason recorded
//     in history
//   - target state is terminal: instance moves to Completed
//
// The new snapshot is written in a single Put, so no partial transition is
// ever visible.
func (e *Engine) Advance(ctx context.Context, instanceID, event string, payload map[string]any) (*core.WorkflowInstance, error) {
	wi, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if wi.Status.Terminal() {
		return nil, &core.InvalidStateError{InstanceID: wi.ID, State: wi.Current, Status: wi.Status}
	}

	def, ok := e.Definition(wi.Definition)
	if !ok {
		return nil, &core.UnknownWorkflowError{Name: wi.Definition}
	}

	merged := make(map[string]any, len(wi.Context)+len(payload))
	for k, v := range wi.Context {
		merged[k] = v
	}
	for k, v := range payload {
		merged[k] = v
	}

	var matched *Transition
	candidates := def.transitionsFor(wi.Current, event)
	for i := range candidates {
		tr := candidates[i]
		if tr.Guard == nil || tr.Guard(merged) {
			matched = &tr
			break
		}
	}
	if matched == nil {
		return nil, &core.NoMatchingTransitionError{InstanceID: wi.ID, State: wi.Current, Event: event}
	}

	from := wi.Current
	if matched.Action != nil {
		if err := matched.Action(ctx, wi, payload); err != nil {
			if gateway.IsTransient(err) {
				// Pre-transition state stays visible; the event may be
				// replayed once the downstream recovers.
				e.logger.Warn("workflow.advance.transient", "instance_id", wi.ID, "event", event, "error", err.Error())
				return nil, err
			}
			wi.Status = core.StatusFailed
			wi.AppendHistory(event, from, from, fmt.Sprintf("action %s failed: %v", matched.ActionName, err))
			if putErr := e.store.Put(ctx, wi); putErr != nil {
				return nil, fmt.Errorf("persisting failed instance: %w", putErr)
			}
			e.logger.Error("workflow.advance.failed", "instance_id", wi.ID, "event", event, "action", matched.ActionName, "error", err.Error())
			return wi.Clone(), err
		}
	}

	// An in-flight action that completed after a cancellation keeps its side
	// effect, but the resulting transition is discarded.
	current, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		e.logger.Info("workflow.advance.discarded", "instance_id", wi.ID, "event", event, "status", string(current.Status))
		return nil, &core.InvalidStateError{InstanceID: current.ID, State: current.Current, Status: current.Status}
	}

	wi.AppendHistory(event, from, matched.To, "")
	if def.IsTerminal(matched.To) {
		wi.Status = core.StatusCompleted
	}
	if err := e.store.Put(ctx, wi); err != nil {
		return nil, fmt.Errorf("persisting advanced instance: %w", err)
	}
	e.logger.Info("workflow.advanced", "definition", wi.Definition, "instance_id", wi.ID, "event", event, "from", string(from), "to", string(matched.To), "status", string(wi.Status))
	return wi.Clone(), nil
}

// Cancel moves an instance to Cancelled from any non-terminal state,
// recording the reason in history. Cancellation is cooperative: it does not
// abort an in-flight action, but any transition that action would have
// produced is discarded by Advance.
func (e *Engine) Cancel(ctx context.Context, instanceID, reason string) (*core.WorkflowInstance, error) {
	wi, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if wi.Status.Terminal() {
		return nil, &core.InvalidStateError{InstanceID: wi.ID, State: wi.Current, Status: wi.Status}
	}

	wi.Status = core.StatusCancelled
	wi.AppendHistory("cancel", wi.Current, wi.Current, reason)
	if err := e.store.Put(ctx, wi); err != nil {
		return nil, fmt.Errorf("persisting cancelled instance: %w", err)
	}
	e.logger.Info("workflow.cancelled", "instance_id", wi.ID, "reason", reason)
	return wi.Clone(), nil
}

// Get returns a copy of an instance.
func (e *Engine) Get(ctx context.Context, instanceID string) (*core.WorkflowInstance, error) {
	return e.store.Get(ctx, instanceID)
}
