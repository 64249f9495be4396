package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/internal/util"
	"github.com/talentmesh/talentmesh/logging"
	"github.com/talentmesh/talentmesh/model"
)

// ModelHandlerOptions configures a ModelHandler.
type ModelHandlerOptions struct {
	// SystemPrompt precedes every generation. Usually the capability
	// descriptor's prompt.
	SystemPrompt string
	// HistoryTurns bounds the session trail turns included as conversation
	// context. Defaults to 8.
	HistoryTurns int
	// MaxTokens caps the completion length; zero uses the model default.
	MaxTokens int64
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// ModelHandler answers capability invocations with a language model: the
// capability's system prompt, the session trail and any grounding documents
// are folded into one generation request. Grounding failures never reach
// this handler; the orchestrator passes an empty document set instead.
type ModelHandler struct {
	model        model.Model
	systemPrompt string
	history      int
	maxTokens    int64
	logger       logging.Logger
}

// NewModelHandler creates a handler over the given model.
func NewModelHandler(m model.Model, optFns ...func(o *ModelHandlerOptions)) *ModelHandler {
	opts := ModelHandlerOptions{
		HistoryTurns: 8,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelHandler{
		model:        m,
		systemPrompt: opts.SystemPrompt,
		history:      opts.HistoryTurns,
		maxTokens:    opts.MaxTokens,
		logger:       opts.Logger,
	}
}

// Handle implements Handler.
func (h *ModelHandler) Handle(ctx context.Context, req Request) (*core.Response, error) {
	mreq := model.Request{
		System:    h.buildSystem(req),
		MaxTokens: h.maxTokens,
	}
	if req.Session != nil {
		for _, turn := range req.Session.RecentTurns(h.history) {
			role := "user"
			if turn.Role == "agent" {
				role = "assistant"
			}
			mreq.Messages = append(mreq.Messages, model.Message{Role: role, Content: turn.Text})
		}
	}
	mreq.Messages = append(mreq.Messages, model.Message{Role: "user", Content: req.Message})

	resp, err := h.model.Generate(ctx, mreq)
	if err != nil {
		return nil, fmt.Errorf("generating capability answer: %w", err)
	}
	h.logger.Debug("agent.model_answer", "capability_id", req.CapabilityID, "finish_reason", resp.FinishReason)
	return &core.Response{Text: resp.Text}, nil
}

// buildSystem folds the capability prompt, extracted parameters and
// grounding excerpts into the system prompt. Template markers in the
// capability prompt expand against session state.
func (h *ModelHandler) buildSystem(req Request) string {
	prompt := h.systemPrompt
	if prompt != "" {
		var state map[string]any
		if req.Session != nil {
			state = req.Session.State
		}
		rendered, err := util.RenderTemplate(prompt, state)
		if err != nil {
			h.logger.Warn("agent.prompt_template_failed", "capability_id", req.CapabilityID, "error", err.Error())
		} else {
			prompt = rendered
		}
	}

	var b strings.Builder
	b.WriteString(prompt)
	if len(req.Parameters) > 0 {
		b.WriteString("\n\nExtracted request parameters:")
		keys := make([]string, 0, len(req.Parameters))
		for k := range req.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n- %s: %v", k, req.Parameters[k])
		}
	}
	if len(req.Grounding) > 0 {
		b.WriteString("\n\nGrounding documents (cite when relevant):")
		for _, doc := range req.Grounding {
			fmt.Fprintf(&b, "\n[%s] %s", doc.DocID, doc.Excerpt)
		}
	}
	return b.String()
}
