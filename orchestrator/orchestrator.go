package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/talentmesh/talentmesh/agent"
	"github.com/talentmesh/talentmesh/capability"
	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/logging"
	"github.com/talentmesh/talentmesh/router"
	"github.com/talentmesh/talentmesh/session"
	"github.com/talentmesh/talentmesh/workflow"
)

const (
	defaultGroundingTopK = 3
	defaultTurnTimeout   = 30 * time.Second

	retryLaterText = "I couldn't process that just now. Please try again in a moment."
)

// Options configures an Orchestrator.
type Options struct {
	// Sessions persists conversations. Defaults to the in-memory store.
	Sessions core.SessionStore
	// Retriever grounds informational answers. Nil disables grounding.
	Retriever core.Retriever
	// GroundingTopK bounds the documents fetched per turn. Defaults to 3.
	GroundingTopK int
	// TurnTimeout caps the wall-clock time of one turn, covering routing,
	// workflow actions and the model call. Defaults to 30s; <= 0 disables.
	TurnTimeout time.Duration
	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Orchestrator wires the registry, router, workflow engine, handler mux and
// session store into the external entry points. It holds no domain logic of
// its own beyond turn coordination and the per-session lock.
type Orchestrator struct {
	registry *capability.Registry
	router   *router.Router
	engine   *workflow.Engine
	handlers *agent.Mux
	sessions core.SessionStore

	retriever core.Retriever
	topK      int
	timeout   time.Duration
	metrics   *Metrics
	logger    logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator over the given components.
func New(registry *capability.Registry, rt *router.Router, engine *workflow.Engine, handlers *agent.Mux, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Sessions:      session.NewInMemoryStore(),
		GroundingTopK: defaultGroundingTopK,
		TurnTimeout:   defaultTurnTimeout,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		registry:  registry,
		router:    rt,
		engine:    engine,
		handlers:  handlers,
		sessions:  opts.Sessions,
		retriever: opts.Retriever,
		topK:      opts.GroundingTopK,
		timeout:   opts.TurnTimeout,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
}

// Sessions exposes the session store, for the HTTP adapter and the sweeper.
func (o *Orchestrator) Sessions() core.SessionStore { return o.sessions }

// lockSession acquires the session's exclusive lock and returns the unlock.
// Lock entries are never evicted; they are a mutex per live conversation and
// the sweeper's Delete path removes them with the session.
func (o *Orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	l, ok := o.locks[sessionID]
	if !ok {
		if o.locks == nil {
			o.locks = make(map[string]*sync.Mutex)
		}
		l = &sync.Mutex{}
		o.locks[sessionID] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (o *Orchestrator) dropLock(sessionID string) {
	o.mu.Lock()
	delete(o.locks, sessionID)
	o.mu.Unlock()
}

// HandleTurn processes one conversational turn for the participant: resolve
// the session, route the message, start or answer the matched capability and
// record both sides on the session trail. Routing unavailability maps to a
// retry-later response rather than an error; retrieval unavailability
// degrades to an ungrounded answer.
func (o *Orchestrator) HandleTurn(ctx context.Context, participantID, text string) (*core.Response, error) {
	started := time.Now()
	if participantID == "" {
		return nil, &core.ValidationError{Field: "participantId", Message: "participant id must not be empty"}
	}

	sess, err := o.sessions.GetOrCreate(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	unlock := o.lockSession(sess.ID)
	defer unlock()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, capabilityID, outcome, err := o.processTurn(ctx, sess, text)
	if err != nil {
		o.metrics.observeTurn("error", time.Since(started).Seconds())
		return nil, err
	}

	sess.AddTurn(core.TurnRecord{Role: "user", Text: text, CapabilityID: capabilityID})
	sess.AddTurn(core.TurnRecord{Role: "agent", Text: resp.Text, CapabilityID: capabilityID})
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	o.metrics.observeTurn(outcome, time.Since(started).Seconds())
	o.logger.Info("orchestrator.turn", "session_id", sess.ID, "outcome", outcome, "capability_id", capabilityID)
	return resp, nil
}

// processTurn runs routing and dispatch under the session lock.
func (o *Orchestrator) processTurn(ctx context.Context, sess *core.Session, text string) (resp *core.Response, capabilityID, outcome string, err error) {
	decision, err := o.router.Route(ctx, text, sess)
	if err != nil {
		var unavailable *core.RoutingUnavailableError
		if errors.As(err, &unavailable) {
			o.logger.Warn("orchestrator.routing_unavailable", "session_id", sess.ID, "error", err.Error())
			return &core.Response{Text: retryLaterText}, "", "routing_unavailable", nil
		}
		return nil, "", "", err
	}
	o.metrics.observeDecision(string(decision.Kind))

	if decision.Kind == router.DecisionClarification {
		return &core.Response{Text: decision.Question}, "", "clarification", nil
	}

	desc, err := o.registry.Lookup(decision.CapabilityID)
	if err != nil {
		// The router only emits registered IDs; reaching this is a
		// registry/router configuration mismatch.
		o.logger.Error("orchestrator.capability_missing", "capability_id", decision.CapabilityID)
		return nil, "", "", err
	}

	if desc.Workflow != "" {
		resp, outcome, err = o.startWorkflow(ctx, sess, desc, decision.Parameters)
		return resp, desc.ID, outcome, err
	}

	resp, err = o.answer(ctx, desc, text, decision.Parameters, sess)
	if err != nil {
		return nil, "", "", err
	}
	return resp, desc.ID, "answered", nil
}

// startWorkflow starts the capability's workflow for the session. A conflict
// with an already-active instance is a conversational outcome, not an error.
func (o *Orchestrator) startWorkflow(ctx context.Context, sess *core.Session, desc core.CapabilityDescriptor, params map[string]any) (*core.Response, string, error) {
	wi, err := o.engine.Start(ctx, sess.ID, desc.Workflow, params)
	if err != nil {
		var conflict *core.ConflictError
		if errors.As(err, &conflict) {
			existing, getErr := o.engine.Get(ctx, conflict.InstanceID)
			if getErr != nil {
				return nil, "", fmt.Errorf("loading conflicting instance: %w", getErr)
			}
			return &core.Response{
				Text: fmt.Sprintf("You already have a %s workflow in progress (current step: %s). Finish or cancel it before starting another.",
					desc.Workflow, existing.Current),
				SuggestedActions: o.suggestedEvents(desc.Workflow, existing.Current),
			}, "conflict", nil
		}
		return nil, "", err
	}

	if err := o.sessions.Attach(ctx, sess.ID, wi.ID); err != nil {
		return nil, "", fmt.Errorf("attaching instance: %w", err)
	}
	sess.Attach(wi.ID)
	o.metrics.observeTransition(wi.Definition)

	return &core.Response{
		Text:             fmt.Sprintf("Started the %s workflow (instance %s). Current step: %s.", desc.Workflow, wi.ID, wi.Current),
		SuggestedActions: o.suggestedEvents(wi.Definition, wi.Current),
	}, "workflow_started", nil
}

// answer serves an informational capability: retrieval grounding first, then
// the capability's handler.
func (o *Orchestrator) answer(ctx context.Context, desc core.CapabilityDescriptor, text string, params map[string]any, sess *core.Session) (*core.Response, error) {
	h, ok := o.handlers.Lookup(desc.ID)
	if !ok {
		return nil, &core.UnknownCapabilityError{ID: desc.ID}
	}

	return h.Handle(ctx, agent.Request{
		CapabilityID: desc.ID,
		Message:      text,
		Parameters:   params,
		Session:      sess,
		Grounding:    o.ground(ctx, text),
	})
}

// ground fetches grounding documents for the query against the latest corpus
// snapshot. Retrieval failure is logged and degrades to no grounding.
func (o *Orchestrator) ground(ctx context.Context, query string) []core.RetrievedDocument {
	if o.retriever == nil {
		return nil
	}
	docs, err := o.retriever.Retrieve(ctx, query, "", o.topK)
	if err != nil {
		o.logger.Warn("orchestrator.retrieval_degraded", "error", err.Error())
		o.metrics.observeRetrieval("unavailable")
		return nil
	}
	o.metrics.observeRetrieval("ok")
	return docs
}

// IntentResult is what SubmitIntent hands back: the routing decision, plus
// the started instance when the decision dispatched to a workflow.
type IntentResult struct {
	Decision router.Decision       `json:"decision"`
	Instance *core.InstanceSummary `json:"instance,omitempty"`
}

// SubmitIntent routes one message for an existing session and, when the
// matched capability names a workflow, starts it. Informational capabilities
// are not invoked; the caller gets the bare decision. Routing failures
// surface as errors here so the REST layer can map them itself.
func (o *Orchestrator) SubmitIntent(ctx context.Context, sessionID, text string) (*IntentResult, error) {
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	unlock := o.lockSession(sess.ID)
	defer unlock()

	decision, err := o.router.Route(ctx, text, sess)
	if err != nil {
		return nil, err
	}
	o.metrics.observeDecision(string(decision.Kind))

	result := &IntentResult{Decision: decision}
	if decision.Kind != router.DecisionCapability {
		return result, nil
	}

	desc, err := o.registry.Lookup(decision.CapabilityID)
	if err != nil {
		return nil, err
	}
	if desc.Workflow == "" {
		return result, nil
	}

	wi, err := o.engine.Start(ctx, sess.ID, desc.Workflow, decision.Parameters)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.Attach(ctx, sess.ID, wi.ID); err != nil {
		return nil, fmt.Errorf("attaching instance: %w", err)
	}
	o.metrics.observeTransition(wi.Definition)

	summary := wi.Summary()
	result.Instance = &summary
	return result, nil
}

// AdvanceWorkflow applies one event to an instance under its owning
// session's lock. A terminal outcome (completed, failed) detaches the
// instance from the session.
func (o *Orchestrator) AdvanceWorkflow(ctx context.Context, instanceID, event string, payload map[string]any) (core.InstanceSummary, error) {
	wi, err := o.engine.Get(ctx, instanceID)
	if err != nil {
		return core.InstanceSummary{}, err
	}

	unlock := o.lockSession(wi.SessionID)
	defer unlock()

	out, err := o.engine.Advance(ctx, instanceID, event, payload)
	if out != nil && out.Status.Terminal() {
		if detachErr := o.sessions.Detach(ctx, out.SessionID, out.ID); detachErr != nil {
			o.logger.Warn("orchestrator.detach_failed", "instance_id", out.ID, "error", detachErr.Error())
		}
	}
	if err != nil {
		return core.InstanceSummary{}, err
	}
	o.metrics.observeTransition(out.Definition)
	o.touchSession(ctx, out.SessionID)
	return out.Summary(), nil
}

// PostExternalEvent is the webhook entry point for external approval
// systems; it maps directly onto AdvanceWorkflow.
func (o *Orchestrator) PostExternalEvent(ctx context.Context, instanceID, event string, payload map[string]any) (core.InstanceSummary, error) {
	o.logger.Info("orchestrator.external_event", "instance_id", instanceID, "event", event)
	return o.AdvanceWorkflow(ctx, instanceID, event, payload)
}

// CancelWorkflow cancels an instance and detaches it from its session.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, instanceID, reason string) (core.InstanceSummary, error) {
	wi, err := o.engine.Get(ctx, instanceID)
	if err != nil {
		return core.InstanceSummary{}, err
	}

	unlock := o.lockSession(wi.SessionID)
	defer unlock()

	out, err := o.engine.Cancel(ctx, instanceID, reason)
	if err != nil {
		return core.InstanceSummary{}, err
	}
	if detachErr := o.sessions.Detach(ctx, out.SessionID, out.ID); detachErr != nil {
		o.logger.Warn("orchestrator.detach_failed", "instance_id", out.ID, "error", detachErr.Error())
	}
	o.touchSession(ctx, out.SessionID)
	return out.Summary(), nil
}

// touchSession refreshes the owning session's last-activity timestamp so
// workflow events arriving outside a conversational turn still count against
// the sweeper's idle threshold.
func (o *Orchestrator) touchSession(ctx context.Context, sessionID string) {
	if err := o.sessions.Touch(ctx, sessionID); err != nil {
		o.logger.Warn("orchestrator.touch_failed", "session_id", sessionID, "error", err.Error())
	}
}

// GetInstance returns the summary view of a workflow instance.
func (o *Orchestrator) GetInstance(ctx context.Context, instanceID string) (core.InstanceSummary, error) {
	wi, err := o.engine.Get(ctx, instanceID)
	if err != nil {
		return core.InstanceSummary{}, err
	}
	return wi.Summary(), nil
}

// QueryAgent invokes a capability directly, bypassing routing and sessions.
// Grounding still applies; the answer text is returned raw.
func (o *Orchestrator) QueryAgent(ctx context.Context, capabilityID, message string) (string, error) {
	desc, err := o.registry.Lookup(capabilityID)
	if err != nil {
		return "", err
	}

	resp, err := o.answer(ctx, desc, message, nil, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// suggestedEvents lists the events leaving the state in declaration order,
// deduplicated, as quick-reply hints.
func (o *Orchestrator) suggestedEvents(definition string, state core.StateID) []string {
	def, ok := o.engine.Definition(definition)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	var events []string
	for _, tr := range def.Transitions {
		if tr.From == state && !seen[tr.Event] {
			seen[tr.Event] = true
			events = append(events, tr.Event)
		}
	}
	return events
}
