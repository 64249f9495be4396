package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(retry RetryConfig) *Gateway {
	g := New(func(o *Options) { o.Retry = retry })
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

// countingService fails with the scripted errors before succeeding.
type countingService struct {
	name  string
	calls int
	fails []error
}

func (s *countingService) Name() string { return s.name }

func (s *countingService) Operations() map[string]OperationSpec {
	return map[string]OperationSpec{"send": {Description: "send a notification"}}
}

func (s *countingService) Invoke(_ context.Context, _ string, _ map[string]any) (any, error) {
	s.calls++
	if s.calls <= len(s.fails) {
		return nil, s.fails[s.calls-1]
	}
	return "sent", nil
}

func TestGateway_RetriesTransientThenSucceeds(t *testing.T) {
	svc := &countingService{name: "notify", fails: []error{
		Transient(errors.New("timeout")),
	}}
	g := newTestGateway(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2})
	g.RegisterService(svc)

	result, err := g.Invoke(context.Background(), "notify", "send", nil)
	require.NoError(t, err)
	assert.Equal(t, "sent", result)
	assert.Equal(t, 2, svc.calls)
}

func TestGateway_ExhaustionRaisesExternalServiceError(t *testing.T) {
	// Three consecutive transient failures with max attempts 3: the fourth
	// logical attempt, which would have succeeded, is never made.
	svc := &countingService{name: "notify", fails: []error{
		Transient(errors.New("timeout")),
		Transient(errors.New("timeout")),
		Transient(errors.New("timeout")),
	}}
	g := newTestGateway(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2})
	g.RegisterService(svc)

	_, err := g.Invoke(context.Background(), "notify", "send", nil)
	var ese *ExternalServiceError
	require.ErrorAs(t, err, &ese)
	assert.Equal(t, "notify", ese.Service)
	assert.Equal(t, "send", ese.Operation)
	assert.Equal(t, 3, ese.Attempts)
	assert.Equal(t, 3, svc.calls, "attempts must never exceed the configured maximum")
}

func TestGateway_AuthorizationNeverRetried(t *testing.T) {
	svc := &countingService{name: "directory", fails: []error{
		&AuthorizationError{Service: "directory", Operation: "send", Cause: errors.New("401")},
	}}
	g := newTestGateway(RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond, Multiplier: 2})
	g.RegisterService(svc)

	_, err := g.Invoke(context.Background(), "directory", "send", nil)
	var authz *AuthorizationError
	require.ErrorAs(t, err, &authz)
	assert.Equal(t, 1, svc.calls)
}

func TestGateway_PermanentNeverRetried(t *testing.T) {
	svc := &countingService{name: "documents", fails: []error{
		Permanent(errors.New("no such template")),
	}}
	g := newTestGateway(RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond, Multiplier: 2})
	g.RegisterService(svc)

	_, err := g.Invoke(context.Background(), "documents", "send", nil)
	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, 1, svc.calls)
}

func TestGateway_IdempotencyKeyReturnsCachedOutcome(t *testing.T) {
	svc := &countingService{name: "notify"}
	g := newTestGateway(DefaultRetryConfig())
	g.sleep = func(context.Context, time.Duration) error { return nil }
	g.RegisterService(svc)

	first, err := g.Invoke(context.Background(), "notify", "send", nil, WithIdempotencyKey("k1"))
	require.NoError(t, err)

	second, err := g.Invoke(context.Background(), "notify", "send", nil, WithIdempotencyKey("k1"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, svc.calls, "cached success must not re-execute the downstream operation")
}

func TestGateway_IdempotencyKeyRetriesUntilSuccessRecorded(t *testing.T) {
	svc := &countingService{name: "notify", fails: []error{
		Transient(errors.New("flaky")),
	}}
	g := newTestGateway(RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, Multiplier: 2})
	g.RegisterService(svc)

	_, err := g.Invoke(context.Background(), "notify", "send", nil, WithIdempotencyKey("k2"))
	require.NoError(t, err)

	// A failed attempt does not poison the record; success was recorded.
	_, err = g.Invoke(context.Background(), "notify", "send", nil, WithIdempotencyKey("k2"))
	require.NoError(t, err)
	assert.Equal(t, 2, svc.calls)
}

func TestGateway_UnknownServiceAndOperation(t *testing.T) {
	g := newTestGateway(DefaultRetryConfig())
	g.RegisterService(NewFuncService("llm"))

	_, err := g.Invoke(context.Background(), "nope", "x", nil)
	var unknown *UnknownServiceError
	require.ErrorAs(t, err, &unknown)

	_, err = g.Invoke(context.Background(), "llm", "classify", nil)
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "classify", unknown.Operation)
}

func TestGateway_ValidatesPayloadBeforeDispatch(t *testing.T) {
	called := false
	svc := NewFuncService("calendar").Handle("book", OperationSpec{
		Description: "book a meeting room",
		Parameters: map[string]any{
			"properties": map[string]any{"room": map[string]any{"type": "string"}},
			"required":   []string{"room"},
		},
	}, func(context.Context, map[string]any) (any, error) {
		called = true
		return "ok", nil
	})
	g := newTestGateway(DefaultRetryConfig())
	g.RegisterService(svc)

	_, err := g.Invoke(context.Background(), "calendar", "book", map[string]any{})
	require.Error(t, err)
	assert.False(t, called, "invalid payload must be rejected before dispatch")
}
