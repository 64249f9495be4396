package gateway

import (
	"context"
	"fmt"
)

// OperationSpec declares one named operation a service exposes: a short
// description plus a minimal JSON-schema map for its payload.
type OperationSpec struct {
	Description string
	Parameters  map[string]any
}

// Service is the contract every downstream adapter implements. A service
// owns a stable name, a catalog of operations and the call itself. Errors
// returned from Invoke should be classified with Transient / Permanent /
// AuthorizationError wrappers so the gateway can decide whether to retry.
type Service interface {
	// Name returns the unique service name ("directory", "documents", "llm").
	Name() string

	// Operations returns the operation catalog keyed by operation name.
	Operations() map[string]OperationSpec

	// Invoke executes one operation with an already-validated payload.
	Invoke(ctx context.Context, operation string, payload map[string]any) (any, error)
}

// OperationFunc is the implementation of a single FuncService operation.
type OperationFunc func(ctx context.Context, payload map[string]any) (any, error)

// funcOperation pairs a spec with its implementation.
type funcOperation struct {
	spec OperationSpec
	fn   OperationFunc
}

// FuncService adapts plain Go functions into a Service. It has no mutable
// state after construction and is safe for concurrent use.
type FuncService struct {
	name string
	ops  map[string]funcOperation
}

// NewFuncService creates an empty function-backed service.
func NewFuncService(name string) *FuncService {
	return &FuncService{name: name, ops: make(map[string]funcOperation)}
}

// Handle registers an operation. Returns the service for chaining.
func (s *FuncService) Handle(operation string, spec OperationSpec, fn OperationFunc) *FuncService {
	s.ops[operation] = funcOperation{spec: spec, fn: fn}
	return s
}

// Name returns the service name.
func (s *FuncService) Name() string { return s.name }

// Operations returns the operation catalog.
func (s *FuncService) Operations() map[string]OperationSpec {
	specs := make(map[string]OperationSpec, len(s.ops))
	for name, op := range s.ops {
		specs[name] = op.spec
	}
	return specs
}

// Invoke executes the named operation.
func (s *FuncService) Invoke(ctx context.Context, operation string, payload map[string]any) (any, error) {
	op, ok := s.ops[operation]
	if !ok {
		return nil, &UnknownServiceError{Service: s.name, Operation: operation}
	}
	result, err := op.fn(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", s.name, operation, err)
	}
	return result, nil
}
