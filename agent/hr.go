package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/talentmesh/talentmesh/capability"
	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/workflow"
)

// Built-in HR capability IDs.
const (
	CapLeave       = "leave"
	CapOnboarding  = "onboarding"
	CapRecruitment = "recruitment"
	CapPerformance = "performance"
	CapHRInfo      = "hr-info"
)

// BuiltinCapabilities returns the descriptors of the built-in HR capability
// set. Parameter schemas declare the fields routing may extract; none are
// required at routing time since workflows collect what is missing.
func BuiltinCapabilities() []core.CapabilityDescriptor {
	return []core.CapabilityDescriptor{
		{
			ID:          CapLeave,
			IntentTags:  []string{"leave", "vacation", "time-off", "pto"},
			Workflow:    "leaveRequest",
			Description: "Submit and track leave requests.",
			SystemPrompt: "You are the leave assistant. Help employees submit leave requests, " +
				"explain the approval flow and summarize request status. Be concise and concrete.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"from": map[string]any{"type": "string", "description": "first day of leave (YYYY-MM-DD)"},
					"to":   map[string]any{"type": "string", "description": "last day of leave (YYYY-MM-DD)"},
					"kind": map[string]any{"type": "string", "enum": []any{"annual", "sick", "parental", "unpaid"}},
				},
			},
		},
		{
			ID:          CapOnboarding,
			IntentTags:  []string{"onboarding", "new-hire", "first-day"},
			Workflow:    "onboarding",
			Description: "Coordinate new hire onboarding.",
			SystemPrompt: "You are the onboarding coordinator. Walk managers and new hires through " +
				"equipment, accounts and first-week setup. Surface what is still missing.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"employeeName": map[string]any{"type": "string"},
					"startDate":    map[string]any{"type": "string"},
				},
			},
		},
		{
			ID:          CapRecruitment,
			IntentTags:  []string{"recruitment", "hiring", "job-posting"},
			Workflow:    "recruitment",
			Description: "Drive a requisition from draft to hire.",
			SystemPrompt: "You are the recruitment assistant. Track requisitions through posting, " +
				"interviewing and offer stages and report where each one stands.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":      map[string]any{"type": "string"},
					"candidate": map[string]any{"type": "string"},
				},
			},
		},
		{
			ID:          CapPerformance,
			IntentTags:  []string{"performance", "review", "appraisal"},
			Workflow:    "performance",
			Description: "Run performance review cycles.",
			SystemPrompt: "You are the performance review assistant. Guide employees and managers " +
				"through self reviews, manager reviews and finalization deadlines.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cycle": map[string]any{"type": "string"},
				},
			},
		},
		{
			ID:          CapHRInfo,
			IntentTags:  []string{"policy", "benefits", "question", "info"},
			Description: "Answer HR policy and benefits questions from the knowledge base.",
			SystemPrompt: "You are the HR information assistant. Answer from the grounding documents " +
				"when they are provided and say so when the answer is not covered by them.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{"type": "string"},
				},
			},
		},
	}
}

// Gateway service names the built-in workflow actions call.
const (
	DirectoryServiceName = "directory"
	DocumentsServiceName = "documents"
)

// NewBuiltinCatalog binds the guard and action names used by the built-in
// workflow definitions. Actions go through the gateway with an idempotency
// key derived from instance, action and history position, so a replayed
// event after a transient failure never duplicates a side effect.
func NewBuiltinCatalog(gw *gateway.Gateway) *workflow.Catalog {
	c := workflow.NewCatalog()

	c.RegisterGuard("has_dates", func(merged map[string]any) bool {
		return hasString(merged, "from") && hasString(merged, "to")
	})
	c.RegisterGuard("has_candidate", func(merged map[string]any) bool {
		return hasString(merged, "candidate")
	})

	c.RegisterAction("notify_employee", notifyAction(gw, "employee"))
	c.RegisterAction("notify_manager", notifyAction(gw, "manager"))
	c.RegisterAction("create_onboarding_tasks", func(ctx context.Context, wi *core.WorkflowInstance, payload map[string]any) error {
		_, err := gw.Invoke(ctx, DocumentsServiceName, "createTasks", map[string]any{
			"instanceId": wi.ID,
			"items":      onboardingChecklist,
		}, gateway.WithIdempotencyKey(actionKey(wi, "create_onboarding_tasks")))
		return err
	})
	c.RegisterAction("publish_posting", func(ctx context.Context, wi *core.WorkflowInstance, payload map[string]any) error {
		role, _ := wi.Context["role"].(string)
		if role == "" {
			role, _ = payload["role"].(string)
		}
		_, err := gw.Invoke(ctx, DocumentsServiceName, "publish", map[string]any{
			"instanceId": wi.ID,
			"role":       role,
		}, gateway.WithIdempotencyKey(actionKey(wi, "publish_posting")))
		return err
	})
	c.RegisterAction("archive_review", func(ctx context.Context, wi *core.WorkflowInstance, payload map[string]any) error {
		_, err := gw.Invoke(ctx, DocumentsServiceName, "archive", map[string]any{
			"instanceId": wi.ID,
			"kind":       "performance-review",
		}, gateway.WithIdempotencyKey(actionKey(wi, "archive_review")))
		return err
	})

	return c
}

var onboardingChecklist = []any{
	"order laptop and peripherals",
	"create directory and email accounts",
	"assign onboarding buddy",
	"schedule first-week introductions",
}

func notifyAction(gw *gateway.Gateway, audience string) workflow.Action {
	return func(ctx context.Context, wi *core.WorkflowInstance, payload map[string]any) error {
		message, _ := payload["message"].(string)
		if message == "" {
			message = fmt.Sprintf("Workflow %s reached state %s.", wi.Definition, wi.Current)
		}
		_, err := gw.Invoke(ctx, DirectoryServiceName, "notify", map[string]any{
			"sessionId": wi.SessionID,
			"audience":  audience,
			"message":   message,
		}, gateway.WithIdempotencyKey(actionKey(wi, "notify_"+audience)))
		return err
	}
}

// actionKey is stable across replays of the same logical transition: history
// length only grows when a transition actually commits.
func actionKey(wi *core.WorkflowInstance, action string) string {
	return fmt.Sprintf("%s:%s:%d", wi.ID, action, len(wi.History))
}

func hasString(m map[string]any, key string) bool {
	s, ok := m[key].(string)
	return ok && s != ""
}

// Built-in workflow definition documents. Kept as YAML so they stay in the
// same format operators use for custom definitions.
const (
	leaveRequestYAML = `
name: leaveRequest
initial: Submitted
states: [Submitted, Approved, Rejected, Completed]
terminals: [Completed, Rejected]
transitions:
  - {from: Submitted, event: approve, action: notify_employee, to: Approved}
  - {from: Submitted, event: reject, action: notify_employee, to: Rejected}
  - {from: Approved, event: complete, action: notify_employee, to: Completed}
`

	onboardingYAML = `
name: onboarding
conflict: resume
initial: Created
states: [Created, Preparing, ReadyForDayOne, Completed]
terminals: [Completed]
transitions:
  - {from: Created, event: prepare, action: create_onboarding_tasks, to: Preparing}
  - {from: Preparing, event: ready, action: notify_manager, to: ReadyForDayOne}
  - {from: ReadyForDayOne, event: complete, action: notify_employee, to: Completed}
`

	recruitmentYAML = `
name: recruitment
initial: Drafted
states: [Drafted, Posted, Interviewing, OfferExtended, Hired, Withdrawn]
terminals: [Hired, Withdrawn]
transitions:
  - {from: Drafted, event: post, action: publish_posting, to: Posted}
  - {from: Posted, event: screen, to: Interviewing}
  - {from: Interviewing, event: offer, guard: has_candidate, action: notify_manager, to: OfferExtended}
  - {from: OfferExtended, event: accept, action: notify_employee, to: Hired}
  - {from: Drafted, event: withdraw, to: Withdrawn}
  - {from: Posted, event: withdraw, to: Withdrawn}
  - {from: Interviewing, event: withdraw, to: Withdrawn}
  - {from: OfferExtended, event: withdraw, to: Withdrawn}
`

	performanceYAML = `
name: performance
initial: Scheduled
states: [Scheduled, SelfReviewDone, ManagerReviewDone, Finalized]
terminals: [Finalized]
transitions:
  - {from: Scheduled, event: submit_self, to: SelfReviewDone}
  - {from: SelfReviewDone, event: submit_manager, to: ManagerReviewDone}
  - {from: ManagerReviewDone, event: finalize, action: archive_review, to: Finalized}
`
)

// BuiltinDefinitions parses the built-in workflow documents against the
// catalog.
func BuiltinDefinitions(catalog *workflow.Catalog) ([]*workflow.Definition, error) {
	docs := []string{leaveRequestYAML, onboardingYAML, recruitmentYAML, performanceYAML}
	defs := make([]*workflow.Definition, 0, len(docs))
	for _, doc := range docs {
		def, err := workflow.LoadDefinition(strings.NewReader(doc), catalog)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// RegisterBuiltins wires the built-in HR capability set into a registry and
// workflow engine, binding workflow actions to the gateway.
func RegisterBuiltins(registry *capability.Registry, engine *workflow.Engine, gw *gateway.Gateway) error {
	for _, d := range BuiltinCapabilities() {
		if err := registry.Register(d); err != nil {
			return fmt.Errorf("registering capability %s: %w", d.ID, err)
		}
	}
	defs, err := BuiltinDefinitions(NewBuiltinCatalog(gw))
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := engine.RegisterDefinition(def); err != nil {
			return fmt.Errorf("registering workflow %s: %w", def.Name, err)
		}
	}
	return nil
}
