package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/core"
)

const leaveRequestYAML = `
name: leaveRequest
initial: Submitted
states: [Submitted, Approved, Rejected, Completed]
terminals: [Completed, Rejected]
transitions:
  - {from: Submitted, event: approve, action: notify_employee, to: Approved}
  - {from: Submitted, event: reject, to: Rejected}
  - {from: Approved, event: complete, to: Completed}
`

func testCatalog() *Catalog {
	c := NewCatalog()
	c.RegisterAction("notify_employee", func(ctx context.Context, wi *core.WorkflowInstance, payload map[string]any) error {
		return nil
	})
	c.RegisterGuard("has_dates", func(m map[string]any) bool {
		_, ok := m["from"]
		return ok
	})
	return c
}

func TestLoadDefinition(t *testing.T) {
	d, err := LoadDefinition(strings.NewReader(leaveRequestYAML), testCatalog())
	require.NoError(t, err)
	assert.Equal(t, "leaveRequest", d.Name)
	assert.Equal(t, core.StateID("Submitted"), d.Initial)
	assert.Len(t, d.States, 4)
	assert.Len(t, d.Terminals, 2)
	require.Len(t, d.Transitions, 3)
	assert.Equal(t, "notify_employee", d.Transitions[0].ActionName)
	assert.NotNil(t, d.Transitions[0].Action)
	assert.Nil(t, d.Transitions[1].Action)

	_, err = d.Validate()
	assert.NoError(t, err)
}

func TestLoadDefinition_UnboundActionName(t *testing.T) {
	doc := strings.ReplaceAll(leaveRequestYAML, "notify_employee", "no_such_action")
	_, err := LoadDefinition(strings.NewReader(doc), testCatalog())
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, defErr.Message, "no_such_action")
}

func TestLoadDefinition_UnboundGuardName(t *testing.T) {
	doc := strings.Replace(leaveRequestYAML,
		"event: approve,",
		"event: approve, guard: no_such_guard,", 1)
	_, err := LoadDefinition(strings.NewReader(doc), testCatalog())
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Contains(t, defErr.Message, "no_such_guard")
}

func TestLoadDefinition_MalformedYAML(t *testing.T) {
	_, err := LoadDefinition(strings.NewReader("name: [unclosed"), testCatalog())
	require.Error(t, err)
}

func TestEngine_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leave.yaml"), []byte(leaveRequestYAML), 0o644))

	// A definition with an unreachable state fails registration but must not
	// take the rest of the directory down with it.
	bad := `
name: broken
initial: A
states: [A, B, C]
terminals: [B]
transitions:
  - {from: A, event: go, to: B}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte(bad), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	e := New()
	loaded, failed, err := e.LoadDir(dir, testCatalog())
	require.NoError(t, err)
	assert.Equal(t, []string{"leaveRequest"}, loaded)
	require.Len(t, failed, 1)
	assert.Contains(t, failed, "broken.yaml")

	_, ok := e.Definition("leaveRequest")
	assert.True(t, ok)
	_, ok = e.Definition("broken")
	assert.False(t, ok)
}
