package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/capability"
	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
)

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(core.CapabilityDescriptor{
		ID:         "leave",
		IntentTags: []string{"leave", "vacation", "time-off"},
		Workflow:   "leaveRequest",
	}))
	require.NoError(t, reg.Register(core.CapabilityDescriptor{
		ID:         "expense",
		IntentTags: []string{"expense", "reimbursement"},
	}))
	return reg
}

// classifyGateway wires a canned classification result (or error) behind a
// real gateway so routing exercises the same invoke path production uses.
func classifyGateway(result map[string]any, err error) *gateway.Gateway {
	gw := gateway.New()
	svc := gateway.NewFuncService("llm").
		Handle("classify", gateway.OperationSpec{Description: "intent classification"},
			func(context.Context, map[string]any) (any, error) {
				if err != nil {
					return nil, err
				}
				return result, nil
			})
	gw.RegisterService(svc)
	return gw
}

func TestRoute_SlashCommand(t *testing.T) {
	r := New(testRegistry(t), classifyGateway(nil, errors.New("must not be called")))

	d, err := r.Route(context.Background(), "/leave from=2025-01-15 to=2025-01-20", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionCapability, d.Kind)
	assert.Equal(t, "leave", d.CapabilityID)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, map[string]any{"from": "2025-01-15", "to": "2025-01-20"}, d.Parameters)
}

func TestRoute_KeywordRule(t *testing.T) {
	r := New(testRegistry(t), classifyGateway(nil, errors.New("must not be called")), func(o *Options) {
		o.Rules = []Rule{{Keywords: []string{"book", "holiday"}, CapabilityID: "leave"}}
	})

	d, err := r.Route(context.Background(), "I want to book a holiday next month", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionCapability, d.Kind)
	assert.Equal(t, "leave", d.CapabilityID)
	assert.Equal(t, 0.9, d.Confidence)
}

func TestRoute_ModelClassification(t *testing.T) {
	gw := classifyGateway(map[string]any{
		"tag":        "vacation",
		"parameters": map[string]any{"from": "2025-03-01"},
		"confidence": 0.85,
	}, nil)
	r := New(testRegistry(t), gw)

	d, err := r.Route(context.Background(), "I'd like some time away in March", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionCapability, d.Kind)
	assert.Equal(t, "leave", d.CapabilityID, "tag resolves through the registry")
	assert.Equal(t, 0.85, d.Confidence)
	assert.Equal(t, "2025-03-01", d.Parameters["from"])
}

func TestRoute_LowConfidenceIsClarification(t *testing.T) {
	gw := classifyGateway(map[string]any{"tag": "leave", "confidence": 0.2}, nil)
	r := New(testRegistry(t), gw)

	d, err := r.Route(context.Background(), "hmm, stuff", nil)
	require.NoError(t, err, "clarification is an outcome, not an error")
	assert.Equal(t, DecisionClarification, d.Kind)
	assert.Empty(t, d.CapabilityID)
	assert.NotEmpty(t, d.Question)
}

func TestRoute_UnknownTagIsClarification(t *testing.T) {
	gw := classifyGateway(map[string]any{"tag": "payroll", "confidence": 0.95}, nil)
	r := New(testRegistry(t), gw)

	d, err := r.Route(context.Background(), "question about my payslip", nil)
	require.NoError(t, err)
	assert.Equal(t, DecisionClarification, d.Kind)
}

func TestRoute_GatewayFailureIsRoutingUnavailable(t *testing.T) {
	gw := classifyGateway(nil, gateway.Permanent(errors.New("model overloaded")))
	r := New(testRegistry(t), gw)

	_, err := r.Route(context.Background(), "I need help with something", nil)
	var unavailable *core.RoutingUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestRoute_EmptyMessage(t *testing.T) {
	r := New(testRegistry(t), classifyGateway(nil, nil))
	_, err := r.Route(context.Background(), "   ", nil)
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRoute_SessionHistoryPassedToClassifier(t *testing.T) {
	var seen map[string]any
	gw := gateway.New()
	gw.RegisterService(gateway.NewFuncService("llm").
		Handle("classify", gateway.OperationSpec{},
			func(_ context.Context, payload map[string]any) (any, error) {
				seen = payload
				return map[string]any{"tag": "expense", "confidence": 0.9}, nil
			}))
	r := New(testRegistry(t), gw)

	sess := core.NewSession("sess-1", "emp-7")
	sess.AddTurn(core.TurnRecord{Role: "user", Text: "I bought a monitor"})

	_, err := r.Route(context.Background(), "can I expense it?", sess)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Contains(t, seen, "history")
	assert.Equal(t, "can I expense it?", seen["message"])
}
