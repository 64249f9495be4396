package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/talentmesh/talentmesh/capability"
	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/logging"
)

// DecisionKind discriminates routing outcomes.
type DecisionKind string

const (
	// DecisionCapability matches the message to a registered capability.
	DecisionCapability DecisionKind = "capability"
	// DecisionClarification asks the user to rephrase; produced when no
	// capability clears the confidence threshold. It is an outcome, not an
	// error.
	DecisionClarification DecisionKind = "clarification"
)

// Decision is the routing outcome for one message.
type Decision struct {
	Kind         DecisionKind   `json:"kind"`
	CapabilityID string         `json:"capability_id,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Confidence   float64        `json:"confidence"`
	Question     string         `json:"question,omitempty"` // set for clarification
}

const (
	defaultThreshold = 0.6
	defaultService   = "llm"
	defaultOperation = "classify"
)

// Options configures a Router.
type Options struct {
	// Threshold is the minimum classification confidence for a capability
	// match. Defaults to 0.6.
	Threshold float64
	// Service and Operation name the gateway classification call. Default
	// to "llm" / "classify".
	Service   string
	Operation string
	// Rules are evaluated in order before the model call.
	Rules []Rule
	// HistoryTurns bounds the recent conversation turns sent to the
	// classifier. Defaults to 6.
	HistoryTurns int
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
}

// Router classifies messages against the capability registry.
type Router struct {
	registry  *capability.Registry
	gw        *gateway.Gateway
	threshold float64
	service   string
	operation string
	rules     []Rule
	history   int
	logger    logging.Logger
}

// New creates a Router over the given registry and gateway.
func New(registry *capability.Registry, gw *gateway.Gateway, optFns ...func(o *Options)) *Router {
	opts := Options{
		Threshold:    defaultThreshold,
		Service:      defaultService,
		Operation:    defaultOperation,
		HistoryTurns: 6,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{
		registry:  registry,
		gw:        gw,
		threshold: opts.Threshold,
		service:   opts.Service,
		operation: opts.Operation,
		rules:     opts.Rules,
		history:   opts.HistoryTurns,
		logger:    opts.Logger,
	}
}

// Route classifies one message. The session is read-only context for the
// classifier; sess may be nil. A language-generation failure surfaces as
// RoutingUnavailableError so the caller can answer retry-later instead of
// silently guessing.
func (r *Router) Route(ctx context.Context, message string, sess *core.Session) (Decision, error) {
	if strings.TrimSpace(message) == "" {
		return Decision{}, &core.ValidationError{Field: "message", Message: "message must not be empty"}
	}

	if d, ok := r.ruleStage(message); ok {
		r.logger.Debug("router.rule_match", "capability_id", d.CapabilityID, "confidence", d.Confidence)
		return d, nil
	}

	return r.modelStage(ctx, message, sess)
}

// ruleStage applies slash commands and keyword rules.
func (r *Router) ruleStage(message string) (Decision, bool) {
	if d, ok := r.slashCommand(message); ok {
		return d, true
	}
	lowered := strings.ToLower(message)
	for _, rule := range r.rules {
		if rule.matches(lowered) {
			if _, err := r.registry.Lookup(rule.CapabilityID); err != nil {
				r.logger.Warn("router.rule_unknown_capability", "capability_id", rule.CapabilityID)
				continue
			}
			return Decision{
				Kind:         DecisionCapability,
				CapabilityID: rule.CapabilityID,
				Parameters:   map[string]any{},
				Confidence:   rule.confidence(),
			}, true
		}
	}
	return Decision{}, false
}

// slashCommand parses "/capabilityID key=value …" into a full-confidence
// decision. An unknown command falls through to the later stages.
func (r *Router) slashCommand(message string) (Decision, bool) {
	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(trimmed, "/") {
		return Decision{}, false
	}
	fields := strings.Fields(trimmed)
	id := strings.TrimPrefix(fields[0], "/")
	if id == "" {
		return Decision{}, false
	}
	if _, err := r.registry.Lookup(id); err != nil {
		return Decision{}, false
	}

	params := make(map[string]any)
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			continue
		}
		params[key] = value
	}
	return Decision{
		Kind:         DecisionCapability,
		CapabilityID: id,
		Parameters:   params,
		Confidence:   1.0,
	}, true
}

// modelStage delegates classification to the language-generation service,
// constrained to the registry's known tags.
func (r *Router) modelStage(ctx context.Context, message string, sess *core.Session) (Decision, error) {
	payload := map[string]any{
		"message": message,
		"tags":    r.registry.Tags(),
	}
	if sess != nil {
		var history []map[string]any
		for _, turn := range sess.RecentTurns(r.history) {
			history = append(history, map[string]any{"role": turn.Role, "text": turn.Text})
		}
		if len(history) > 0 {
			payload["history"] = history
		}
	}

	result, err := r.gw.Invoke(ctx, r.service, r.operation, payload)
	if err != nil {
		r.logger.Error("router.classification_failed", "error", err.Error())
		return Decision{}, &core.RoutingUnavailableError{Cause: err}
	}

	tag, params, confidence, err := decodeClassification(result)
	if err != nil {
		return Decision{}, &core.RoutingUnavailableError{Cause: err}
	}

	if confidence < r.threshold {
		r.logger.Info("router.below_threshold", "tag", tag, "confidence", confidence)
		return r.clarification(confidence), nil
	}
	matches := r.registry.Match([]string{tag}, params)
	if len(matches) == 0 {
		r.logger.Info("router.no_capability_for_tag", "tag", tag)
		return r.clarification(confidence), nil
	}

	d := Decision{
		Kind:         DecisionCapability,
		CapabilityID: matches[0].ID,
		Parameters:   params,
		Confidence:   confidence,
	}
	r.logger.Debug("router.classified", "capability_id", d.CapabilityID, "tag", tag, "confidence", confidence)
	return d, nil
}

func (r *Router) clarification(confidence float64) Decision {
	return Decision{
		Kind:       DecisionClarification,
		Confidence: confidence,
		Question:   "I'm not sure what you need. Could you rephrase, or name the request directly (for example: leave, onboarding, recruitment)?",
	}
}

// decodeClassification unpacks the gateway classification result:
// {"tag": string, "parameters": object?, "confidence": number}.
func decodeClassification(result any) (tag string, params map[string]any, confidence float64, err error) {
	obj, ok := result.(map[string]any)
	if !ok {
		return "", nil, 0, fmt.Errorf("classification result is %T, not an object", result)
	}
	tag, ok = obj["tag"].(string)
	if !ok {
		return "", nil, 0, fmt.Errorf("classification result has no tag")
	}
	params, _ = obj["parameters"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	switch v := obj["confidence"].(type) {
	case float64:
		confidence = v
	case int:
		confidence = float64(v)
	default:
		return "", nil, 0, fmt.Errorf("classification result has no numeric confidence")
	}
	return tag, params, confidence, nil
}
