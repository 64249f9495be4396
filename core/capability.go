package core

// CapabilityDescriptor declares one named unit of agent behavior registered
// against one or more intent tags. Descriptors are immutable once
// registered; adding a capability is a data registration, not a new code
// path the router must know about.
type CapabilityDescriptor struct {
	// ID uniquely identifies the capability (snake_case recommended).
	ID string `json:"id" yaml:"id"`

	// IntentTags are the intents this capability serves. The router matches
	// classified tags against this set.
	IntentTags []string `json:"intent_tags" yaml:"intent_tags"`

	// Parameters is a minimal JSON-schema map describing the structured
	// parameters the capability expects from routing.
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// Workflow optionally names the workflow definition this capability
	// dispatches to. Empty for informational capabilities answered directly.
	Workflow string `json:"workflow,omitempty" yaml:"workflow,omitempty"`

	// Description is shown to the classifier model and to users asking what
	// the system can do.
	Description string `json:"description" yaml:"description"`

	// SystemPrompt steers the language model when the capability answers
	// directly (informational intents).
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

// HasTag reports whether the descriptor serves the given intent tag.
func (d CapabilityDescriptor) HasTag(tag string) bool {
	for _, t := range d.IntentTags {
		if t == tag {
			return true
		}
	}
	return false
}
