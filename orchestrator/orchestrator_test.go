package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/agent"
	"github.com/talentmesh/talentmesh/capability"
	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/router"
	"github.com/talentmesh/talentmesh/session"
	"github.com/talentmesh/talentmesh/workflow"
)

type stubRetriever struct {
	docs []core.RetrievedDocument
	err  error
}

func (s stubRetriever) Retrieve(context.Context, string, string, int) ([]core.RetrievedDocument, error) {
	return s.docs, s.err
}

type fixture struct {
	o        *Orchestrator
	sessions *session.InMemoryStore
	engine   *workflow.Engine

	mu       sync.Mutex
	handled  []agent.Request
	classify func(payload map[string]any) (any, error)
}

func (f *fixture) lastHandled(t *testing.T) agent.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.handled, "handler was never invoked")
	return f.handled[len(f.handled)-1]
}

// newFixture wires a two-capability world: "leave" dispatches to a small
// leaveRequest workflow, "hr-info" answers directly through a capturing
// handler. The classifier defaults to low confidence so tests exercise the
// rule stage unless they override classify.
func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewInMemoryStore(),
		engine:   workflow.New(),
		classify: func(map[string]any) (any, error) {
			return map[string]any{"tag": "leave", "confidence": 0.2}, nil
		},
	}

	require.NoError(t, f.engine.RegisterDefinition(&workflow.Definition{
		Name:      "leaveRequest",
		States:    []core.StateID{"Submitted", "Approved", "Completed"},
		Initial:   "Submitted",
		Terminals: []core.StateID{"Completed"},
		Transitions: []workflow.Transition{
			{From: "Submitted", Event: "approve", To: "Approved"},
			{From: "Approved", Event: "complete", To: "Completed"},
		},
	}))

	registry := capability.NewRegistry()
	require.NoError(t, registry.Register(core.CapabilityDescriptor{
		ID:          "leave",
		IntentTags:  []string{"leave"},
		Workflow:    "leaveRequest",
		Description: "Request time off.",
	}))
	require.NoError(t, registry.Register(core.CapabilityDescriptor{
		ID:          "hr-info",
		IntentTags:  []string{"hr-info"},
		Description: "Answer HR policy questions.",
	}))

	gw := gateway.New()
	gw.RegisterService(gateway.NewFuncService("llm").
		Handle("classify", gateway.OperationSpec{
			Description: "Classify a message against intent tags.",
		}, func(_ context.Context, payload map[string]any) (any, error) {
			return f.classify(payload)
		}))

	rt := router.New(registry, gw, func(o *router.Options) {
		o.Rules = []router.Rule{{Keywords: []string{"vacation"}, CapabilityID: "leave"}}
	})

	handlers := agent.NewMux()
	handlers.Register("hr-info", agent.HandlerFunc(func(_ context.Context, req agent.Request) (*core.Response, error) {
		f.mu.Lock()
		f.handled = append(f.handled, req)
		f.mu.Unlock()
		return &core.Response{Text: fmt.Sprintf("grounded with %d documents", len(req.Grounding))}, nil
	}))

	opts := append([]func(o *Options){func(o *Options) { o.Sessions = f.sessions }}, optFns...)
	f.o = New(registry, rt, f.engine, handlers, opts...)
	return f
}

func (f *fixture) sessionFor(t *testing.T, participantID string) *core.Session {
	t.Helper()
	sess, err := f.sessions.GetOrCreate(context.Background(), participantID)
	require.NoError(t, err)
	return sess
}

func TestHandleTurnStartsWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.o.HandleTurn(ctx, "emp-1", "I would like to book vacation next week")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Started the leaveRequest workflow")
	assert.Contains(t, resp.Text, "Submitted")
	assert.Equal(t, []string{"approve"}, resp.SuggestedActions)

	sess := f.sessionFor(t, "emp-1")
	require.Len(t, sess.ActiveInstances, 1)
	require.Len(t, sess.Trail, 2)
	assert.Equal(t, "user", sess.Trail[0].Role)
	assert.Equal(t, "leave", sess.Trail[0].CapabilityID)
	assert.Equal(t, "agent", sess.Trail[1].Role)
}

func TestHandleTurnSecondStartConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.HandleTurn(ctx, "emp-1", "vacation please")
	require.NoError(t, err)

	resp, err := f.o.HandleTurn(ctx, "emp-1", "vacation again")
	require.NoError(t, err, "a duplicate start is a conversational outcome, not an error")
	assert.Contains(t, resp.Text, "already have a leaveRequest workflow")

	sess := f.sessionFor(t, "emp-1")
	assert.Len(t, sess.ActiveInstances, 1)
}

func TestHandleTurnAnswersWithGrounding(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Retriever = stubRetriever{docs: []core.RetrievedDocument{
			{DocID: "policy-leave", Score: 0.9, Excerpt: "25 days"},
			{DocID: "policy-remote", Score: 0.7, Excerpt: "3 days remote"},
		}}
	})

	resp, err := f.o.HandleTurn(context.Background(), "emp-1", "/hr-info topic=leave")
	require.NoError(t, err)
	assert.Equal(t, "grounded with 2 documents", resp.Text)

	req := f.lastHandled(t)
	assert.Equal(t, "hr-info", req.CapabilityID)
	assert.Equal(t, "leave", req.Parameters["topic"])
	require.NotNil(t, req.Session)
	assert.Len(t, req.Grounding, 2)
}

func TestHandleTurnRetrievalFailureDegrades(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Retriever = stubRetriever{err: &core.RetrievalUnavailableError{Cause: errors.New("index down")}}
	})

	resp, err := f.o.HandleTurn(context.Background(), "emp-1", "/hr-info")
	require.NoError(t, err, "retrieval failure must not fail the turn")
	assert.Equal(t, "grounded with 0 documents", resp.Text)
}

func TestHandleTurnRoutingUnavailableAnswersRetryLater(t *testing.T) {
	f := newFixture(t)
	f.classify = func(map[string]any) (any, error) {
		return nil, gateway.Permanent(errors.New("model offline"))
	}

	resp, err := f.o.HandleTurn(context.Background(), "emp-1", "something unclassifiable")
	require.NoError(t, err)
	assert.Equal(t, retryLaterText, resp.Text)

	// The failed turn is still on the record.
	sess := f.sessionFor(t, "emp-1")
	require.Len(t, sess.Trail, 2)
}

func TestHandleTurnClarification(t *testing.T) {
	f := newFixture(t)

	resp, err := f.o.HandleTurn(context.Background(), "emp-1", "hmm")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "rephrase")

	sess := f.sessionFor(t, "emp-1")
	assert.Empty(t, sess.ActiveInstances)
}

func TestSubmitIntentStartsWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.sessionFor(t, "emp-1")

	result, err := f.o.SubmitIntent(ctx, sess.ID, "vacation in march")
	require.NoError(t, err)
	assert.Equal(t, router.DecisionCapability, result.Decision.Kind)
	assert.Equal(t, "leave", result.Decision.CapabilityID)
	require.NotNil(t, result.Instance)
	assert.Equal(t, core.StateID("Submitted"), result.Instance.Current)

	sess = f.sessionFor(t, "emp-1")
	assert.Equal(t, []string{result.Instance.ID}, sess.ActiveInstances)
}

func TestSubmitIntentUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.o.SubmitIntent(context.Background(), "nope", "vacation")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAdvanceWorkflowDetachesOnCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.HandleTurn(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	sess := f.sessionFor(t, "emp-1")
	require.Len(t, sess.ActiveInstances, 1)
	instanceID := sess.ActiveInstances[0]

	summary, err := f.o.AdvanceWorkflow(ctx, instanceID, "approve", map[string]any{"approverId": "mgr1"})
	require.NoError(t, err)
	assert.Equal(t, core.StateID("Approved"), summary.Current)
	assert.Equal(t, core.StatusActive, summary.Status)
	assert.True(t, f.sessionFor(t, "emp-1").HasInstance(instanceID), "active instance stays attached")

	// External approval systems land on the same advance path.
	summary, err = f.o.PostExternalEvent(ctx, instanceID, "complete", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, summary.Status)
	assert.False(t, f.sessionFor(t, "emp-1").HasInstance(instanceID), "terminal instance is detached")
}

func TestAdvanceWorkflowRefreshesSessionActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.HandleTurn(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	sess := f.sessionFor(t, "emp-1")
	require.Len(t, sess.ActiveInstances, 1)
	before := sess.LastActivity

	time.Sleep(5 * time.Millisecond)
	_, err = f.o.AdvanceWorkflow(ctx, sess.ActiveInstances[0], "approve", nil)
	require.NoError(t, err)

	after := f.sessionFor(t, "emp-1").LastActivity
	assert.True(t, after.After(before), "workflow events keep the owning session from going idle")
}

func TestAdvanceWorkflowUnknownInstance(t *testing.T) {
	f := newFixture(t)
	_, err := f.o.AdvanceWorkflow(context.Background(), "missing", "approve", nil)
	require.ErrorIs(t, err, workflow.ErrInstanceNotFound)
}

func TestCancelWorkflowDetaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.HandleTurn(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	instanceID := f.sessionFor(t, "emp-1").ActiveInstances[0]

	summary, err := f.o.CancelWorkflow(ctx, instanceID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, summary.Status)
	assert.Empty(t, f.sessionFor(t, "emp-1").ActiveInstances)
}

func TestQueryAgentBypassesRouting(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Retriever = stubRetriever{docs: []core.RetrievedDocument{{DocID: "policy-leave", Score: 0.8}}}
	})

	text, err := f.o.QueryAgent(context.Background(), "hr-info", "how much leave do I get?")
	require.NoError(t, err)
	assert.Equal(t, "grounded with 1 documents", text)

	req := f.lastHandled(t)
	assert.Nil(t, req.Session, "direct queries carry no session")

	_, err = f.o.QueryAgent(context.Background(), "unknown", "hi")
	var unknown *core.UnknownCapabilityError
	require.ErrorAs(t, err, &unknown)
}

func TestSessionIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	participants := []string{"emp-1", "emp-2"}
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			msg := fmt.Sprintf("/leave from=2025-0%d-01", i+1)
			if _, err := f.o.HandleTurn(ctx, p, msg); err != nil {
				t.Errorf("turn for %s: %v", p, err)
			}
		}(i, p)
	}
	wg.Wait()

	for i, p := range participants {
		sess := f.sessionFor(t, p)
		require.Len(t, sess.ActiveInstances, 1, "participant %s", p)

		instances, err := f.engine.Store().ListBySession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, instances, 1)
		want := fmt.Sprintf("2025-0%d-01", i+1)
		assert.Equal(t, want, instances[0].Context["from"], "session %s sees only its own context", p)
	}
}

func TestSweepReclaimsTerminalInstancesAndIdleSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.o.HandleTurn(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	sessionID := f.sessionFor(t, "emp-1").ID
	instanceID := f.sessionFor(t, "emp-1").ActiveInstances[0]
	_, err = f.o.AdvanceWorkflow(ctx, instanceID, "approve", nil)
	require.NoError(t, err)
	_, err = f.o.AdvanceWorkflow(ctx, instanceID, "complete", nil)
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Minute)
	report, err := f.o.Sweep(ctx, future, future)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Instances)
	assert.Equal(t, 1, report.Sessions)

	_, err = f.engine.Store().Get(ctx, instanceID)
	require.ErrorIs(t, err, workflow.ErrInstanceNotFound)
	_, err = f.sessions.Get(ctx, sessionID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestMetricsCountTurns(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	f := newFixture(t, func(o *Options) { o.Metrics = metrics })
	ctx := context.Background()

	_, err := f.o.HandleTurn(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	_, err = f.o.HandleTurn(ctx, "emp-1", "hmm")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.turns.WithLabelValues("workflow_started")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.turns.WithLabelValues("clarification")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.transitions.WithLabelValues("leaveRequest")))
}
