package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/capability"
	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/workflow"
)

type builtinFixture struct {
	registry  *capability.Registry
	engine    *workflow.Engine
	gw        *gateway.Gateway
	directory *InMemoryDirectory
	documents *InMemoryDocuments
}

func newBuiltinFixture(t *testing.T) *builtinFixture {
	t.Helper()
	f := &builtinFixture{
		registry:  capability.NewRegistry(),
		engine:    workflow.New(),
		gw:        gateway.New(),
		directory: NewInMemoryDirectory(),
		documents: NewInMemoryDocuments(),
	}
	f.gw.RegisterService(f.directory.Service())
	f.gw.RegisterService(f.documents.Service())
	require.NoError(t, RegisterBuiltins(f.registry, f.engine, f.gw))
	return f
}

func TestRegisterBuiltins(t *testing.T) {
	f := newBuiltinFixture(t)

	for _, id := range []string{CapLeave, CapOnboarding, CapRecruitment, CapPerformance, CapHRInfo} {
		if _, err := f.registry.Lookup(id); err != nil {
			t.Errorf("capability %s not registered: %v", id, err)
		}
	}
	for _, name := range []string{"leaveRequest", "onboarding", "recruitment", "performance"} {
		if _, ok := f.engine.Definition(name); !ok {
			t.Errorf("workflow %s not registered", name)
		}
	}
}

func TestBuiltinLeaveRequestNotifies(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	wi, err := f.engine.Start(ctx, "s1", "leaveRequest", map[string]any{"from": "2025-01-15", "to": "2025-01-20"})
	require.NoError(t, err)

	wi, err = f.engine.Advance(ctx, wi.ID, "approve", map[string]any{"approverId": "mgr1"})
	require.NoError(t, err)
	assert.Equal(t, core.StateID("Approved"), wi.Current)

	sent := f.directory.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "employee", sent[0].Audience)
	assert.Equal(t, "s1", sent[0].SessionID)
}

func TestBuiltinOnboardingCreatesChecklist(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	wi, err := f.engine.Start(ctx, "s1", "onboarding", map[string]any{"employeeName": "Sam"})
	require.NoError(t, err)
	wi, err = f.engine.Advance(ctx, wi.ID, "prepare", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StateID("Preparing"), wi.Current)
	assert.NotEmpty(t, f.documents.Tasks(wi.ID))

	// Resume policy: a second start returns the same instance.
	again, err := f.engine.Start(ctx, "s1", "onboarding", nil)
	require.NoError(t, err)
	assert.Equal(t, wi.ID, again.ID)
}

func TestBuiltinRecruitmentOfferNeedsCandidate(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	wi, err := f.engine.Start(ctx, "s1", "recruitment", map[string]any{"role": "Backend Engineer"})
	require.NoError(t, err)
	wi, err = f.engine.Advance(ctx, wi.ID, "post", nil)
	require.NoError(t, err)
	_, ok := f.documents.Posting(wi.ID)
	assert.True(t, ok, "posting published")

	wi, err = f.engine.Advance(ctx, wi.ID, "screen", nil)
	require.NoError(t, err)

	_, err = f.engine.Advance(ctx, wi.ID, "offer", nil)
	var noMatch *core.NoMatchingTransitionError
	require.ErrorAs(t, err, &noMatch, "offer without a candidate must not fire")

	wi, err = f.engine.Advance(ctx, wi.ID, "offer", map[string]any{"candidate": "Alex"})
	require.NoError(t, err)
	assert.Equal(t, core.StateID("OfferExtended"), wi.Current)
}

func TestBuiltinPerformanceArchivesOnFinalize(t *testing.T) {
	f := newBuiltinFixture(t)
	ctx := context.Background()

	wi, err := f.engine.Start(ctx, "s1", "performance", map[string]any{"cycle": "2025-H1"})
	require.NoError(t, err)
	for _, event := range []string{"submit_self", "submit_manager", "finalize"} {
		wi, err = f.engine.Advance(ctx, wi.ID, event, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, core.StatusCompleted, wi.Status)
	kind, ok := f.documents.Archived(wi.ID)
	require.True(t, ok)
	assert.Equal(t, "performance-review", kind)
}

func TestBuiltinDefinitionsValidate(t *testing.T) {
	defs, err := BuiltinDefinitions(NewBuiltinCatalog(gateway.New()))
	require.NoError(t, err)
	require.Len(t, defs, 4)
	for _, def := range defs {
		warnings, err := def.Validate()
		require.NoError(t, err, "definition %s", def.Name)
		assert.Empty(t, warnings, "definition %s", def.Name)
	}
}
