package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/model"
)

// LLMServiceName is the gateway service name the router and retrieval engine
// call for classification, generation and embeddings.
const LLMServiceName = "llm"

const classifySystemPrompt = `You classify employee requests for an HR assistant.
Pick exactly one intent tag from the provided list. Respond with a single JSON
object, nothing else: {"tag": "<tag>", "confidence": <0..1>, "parameters": {...}}.
Extract obvious parameters (dates, names, amounts) into the parameters object.
If no tag fits, pick the closest one and lower the confidence accordingly.`

// NewLLMService exposes a model.Model (and optionally a model.Embedder) as
// the gateway's llm service with classify, generate and embed operations.
// Model failures are wrapped Transient so the gateway's retry policy
// applies.
func NewLLMService(m model.Model, embedder model.Embedder) *gateway.FuncService {
	svc := gateway.NewFuncService(LLMServiceName)

	svc.Handle("classify", gateway.OperationSpec{
		Description: "Classify a message into one of the registry's intent tags.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"message", "tags"},
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"tags":    map[string]any{"type": "array"},
				"history": map[string]any{"type": "array"},
			},
		},
	}, func(ctx context.Context, payload map[string]any) (any, error) {
		return classify(ctx, m, payload)
	})

	svc.Handle("generate", gateway.OperationSpec{
		Description: "Free-form text generation with an optional system prompt.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
				"system":  map[string]any{"type": "string"},
			},
		},
	}, func(ctx context.Context, payload map[string]any) (any, error) {
		return generate(ctx, m, payload)
	})

	svc.Handle("embed", gateway.OperationSpec{
		Description: "Embed texts for the retrieval index.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"texts"},
			"properties": map[string]any{
				"texts": map[string]any{"type": "array"},
			},
		},
	}, func(ctx context.Context, payload map[string]any) (any, error) {
		if embedder == nil {
			return nil, gateway.Permanent(errors.New("model does not support embeddings"))
		}
		texts, err := stringSlice(payload["texts"])
		if err != nil {
			return nil, gateway.Permanent(err)
		}
		vectors, err := embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, gateway.Transient(err)
		}
		return map[string]any{"embeddings": vectors}, nil
	})

	return svc
}

func classify(ctx context.Context, m model.Model, payload map[string]any) (any, error) {
	message, _ := payload["message"].(string)
	tags, err := stringSlice(payload["tags"])
	if err != nil {
		return nil, gateway.Permanent(fmt.Errorf("classify payload: %w", err))
	}

	var prompt strings.Builder
	prompt.WriteString("Intent tags: ")
	prompt.WriteString(strings.Join(tags, ", "))
	if history, ok := payload["history"].([]any); ok && len(history) > 0 {
		prompt.WriteString("\nRecent conversation:")
		for _, item := range history {
			if turn, ok := item.(map[string]any); ok {
				fmt.Fprintf(&prompt, "\n%v: %v", turn["role"], turn["text"])
			}
		}
	}
	prompt.WriteString("\nMessage: ")
	prompt.WriteString(message)

	resp, err := m.Generate(ctx, model.Request{
		System:   classifySystemPrompt,
		Messages: []model.Message{{Role: "user", Content: prompt.String()}},
	})
	if err != nil {
		return nil, gateway.Transient(err)
	}

	var decoded struct {
		Tag        string         `json:"tag"`
		Confidence float64        `json:"confidence"`
		Parameters map[string]any `json:"parameters"`
	}
	raw := extractJSON(resp.Text)
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, gateway.Permanent(fmt.Errorf("classification output is not JSON: %w", err))
	}
	if decoded.Parameters == nil {
		decoded.Parameters = map[string]any{}
	}
	return map[string]any{
		"tag":        decoded.Tag,
		"confidence": decoded.Confidence,
		"parameters": decoded.Parameters,
	}, nil
}

func generate(ctx context.Context, m model.Model, payload map[string]any) (any, error) {
	message, _ := payload["message"].(string)
	system, _ := payload["system"].(string)
	resp, err := m.Generate(ctx, model.Request{
		System:   system,
		Messages: []model.Message{{Role: "user", Content: message}},
	})
	if err != nil {
		return nil, gateway.Transient(err)
	}
	return map[string]any{"text": resp.Text}, nil
}

// extractJSON trims prose around the first top-level JSON object, since
// models occasionally wrap their answer despite instructions.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

func stringSlice(v any) ([]string, error) {
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", v)
	}
}
