package core

import "fmt"

// ValidationError reports malformed input rejected before any dispatch. It is
// user-correctable and never reaches the workflow engine.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// DuplicateCapabilityError is returned by the registry when a descriptor is
// registered under an ID that already exists.
type DuplicateCapabilityError struct {
	ID string
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("capability %q already registered", e.ID)
}

// UnknownCapabilityError is returned on lookup of an unregistered capability.
// It indicates a configuration mismatch and is logged as a defect.
type UnknownCapabilityError struct {
	ID string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("capability %q not registered", e.ID)
}

// UnknownWorkflowError is returned when starting a workflow whose definition
// was never loaded.
type UnknownWorkflowError struct {
	Name string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("workflow definition %q not registered", e.Name)
}

// ConflictError reports a business-rule violation: the owning session already
// has an Active instance of the same definition and the definition's conflict
// policy is single-active. Surfaced to the user as a clarifying message.
type ConflictError struct {
	SessionID  string
	Definition string
	InstanceID string // the already-active instance
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s already has an active %q workflow (instance %s)",
		e.SessionID, e.Definition, e.InstanceID)
}

// NoMatchingTransitionError is the recoverable, caller-visible condition of an
// event arriving in a state with no matching transition. The instance is left
// unchanged; the caller surfaces "not a valid action right now".
type NoMatchingTransitionError struct {
	InstanceID string
	State      StateID
	Event      string
}

func (e *NoMatchingTransitionError) Error() string {
	return fmt.Sprintf("no transition for event %q from state %q on instance %s",
		e.Event, e.State, e.InstanceID)
}

// InvalidStateError is returned when an operation targets an instance whose
// status no longer permits it, e.g. advancing or cancelling a terminal
// instance.
type InvalidStateError struct {
	InstanceID string
	State      StateID
	Status     InstanceStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("instance %s is %s (state %q); operation not permitted",
		e.InstanceID, e.Status, e.State)
}

// RoutingUnavailableError wraps a language-generation failure during intent
// classification. The caller maps it to a retry-later response; it is never
// silently replaced by a fallback decision.
type RoutingUnavailableError struct {
	Cause error
}

func (e *RoutingUnavailableError) Error() string {
	return fmt.Sprintf("intent routing unavailable: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RoutingUnavailableError) Unwrap() error { return e.Cause }

// RetrievalUnavailableError wraps an embedding or index failure during
// document retrieval. Callers treat it as "proceed without grounding", never
// as a hard failure of the whole request.
type RetrievalUnavailableError struct {
	Cause error
}

func (e *RetrievalUnavailableError) Error() string {
	return fmt.Sprintf("retrieval unavailable: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RetrievalUnavailableError) Unwrap() error { return e.Cause }
