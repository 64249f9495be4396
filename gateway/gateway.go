package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/talentmesh/talentmesh/internal/util"
	"github.com/talentmesh/talentmesh/logging"
)

// Options configures a Gateway.
type Options struct {
	// Retry tunes the backoff loop for transient failures.
	Retry RetryConfig
	// Logger defaults to NoOpLogger when nil.
	Logger logging.Logger
	// OnRetry, when set, is called once per scheduled retry. Used by the
	// orchestrator to feed its metrics.
	OnRetry func(service, operation string, attempt int)
}

// InvokeOptions carries per-call options.
type InvokeOptions struct {
	// IdempotencyKey, when set, makes the call at-most-once effective: a
	// prior terminal success under the same key short-circuits to the cached
	// outcome.
	IdempotencyKey string
}

// WithIdempotencyKey supplies an idempotency key for one Invoke call.
func WithIdempotencyKey(key string) func(o *InvokeOptions) {
	return func(o *InvokeOptions) { o.IdempotencyKey = key }
}

// Gateway is the uniform façade over all external services. Registration
// happens at startup; Invoke is safe for concurrent use.
type Gateway struct {
	mu       sync.RWMutex
	services map[string]Service

	retry   RetryConfig
	records *recordStore
	logger  logging.Logger
	onRetry func(service, operation string, attempt int)

	// sleep is swapped out by tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Gateway with optional overrides.
func New(optFns ...func(o *Options)) *Gateway {
	opts := Options{
		Retry:  DefaultRetryConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{
		services: make(map[string]Service),
		retry:    opts.Retry,
		records:  newRecordStore(),
		logger:   opts.Logger,
		onRetry:  opts.OnRetry,
		sleep:    sleepCtx,
	}
}

// RegisterService adds a downstream service adapter.
func (g *Gateway) RegisterService(s Service) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.services[s.Name()] = s
}

// Service returns a registered service by name.
func (g *Gateway) Service(name string) (Service, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.services[name]
	return s, ok
}

// Invoke executes service.operation with the payload. The payload is
// validated against the operation's schema before any network activity.
// Transient failures are retried with bounded exponential backoff and
// jitter; authorization and permanent failures surface immediately. When an
// idempotency key is supplied, a recorded terminal success returns the
// cached outcome without re-invoking the downstream operation.
func (g *Gateway) Invoke(ctx context.Context, service, operation string, payload map[string]any, optFns ...func(o *InvokeOptions)) (any, error) {
	var opts InvokeOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	svc, ok := g.Service(service)
	if !ok {
		return nil, &UnknownServiceError{Service: service}
	}
	spec, ok := svc.Operations()[operation]
	if !ok {
		return nil, &UnknownServiceError{Service: service, Operation: operation}
	}
	if spec.Parameters != nil {
		if err := util.ValidateParameters(payload, spec.Parameters); err != nil {
			return nil, err
		}
	}

	if opts.IdempotencyKey == "" {
		return g.invokeWithRetry(ctx, svc, operation, payload, nil)
	}

	// Serialize invokes sharing a key so a concurrent duplicate observes the
	// first call's terminal outcome instead of racing it.
	keyLock := g.records.lock(opts.IdempotencyKey)
	keyLock.Lock()
	defer keyLock.Unlock()

	if rec, ok := g.records.get(opts.IdempotencyKey); ok && rec.Done {
		g.logger.Debug("gateway.invoke.cached", "service", service, "operation", operation, "key", opts.IdempotencyKey)
		return rec.Outcome, nil
	}

	return g.invokeWithRetry(ctx, svc, operation, payload, &opts)
}

func (g *Gateway) invokeWithRetry(ctx context.Context, svc Service, operation string, payload map[string]any, opts *InvokeOptions) (any, error) {
	maxAttempts := g.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		result, err := svc.Invoke(ctx, operation, payload)
		g.recordAttempt(opts, attempt, result, err)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var authz *AuthorizationError
		if errors.As(err, &authz) {
			return nil, err
		}
		if !isRetryable(err) {
			return nil, err
		}
		if attempt >= maxAttempts {
			break
		}

		backoff := g.retry.backoffFor(attempt)
		g.logger.Warn("gateway.invoke.retry", "service", svc.Name(), "operation", operation, "attempt", attempt, "backoff", backoff, "error", err.Error())
		if g.onRetry != nil {
			g.onRetry(svc.Name(), operation, attempt)
		}
		if err := g.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, &ExternalServiceError{
		Service:   svc.Name(),
		Operation: operation,
		Attempts:  attempts,
		Cause:     lastErr,
	}
}

// recordAttempt overwrites the idempotency record after each attempt; a nil
// error marks the record terminal so later calls reuse the outcome.
func (g *Gateway) recordAttempt(opts *InvokeOptions, attempt int, result any, err error) {
	if opts == nil || opts.IdempotencyKey == "" {
		return
	}
	rec := &CallRecord{Key: opts.IdempotencyKey, Attempts: attempt}
	if prev, ok := g.records.get(opts.IdempotencyKey); ok {
		rec.Attempts = prev.Attempts + 1
	}
	if err != nil {
		rec.LastErr = err.Error()
	} else {
		rec.Outcome = result
		rec.Done = true
	}
	g.records.put(rec)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("gateway backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
