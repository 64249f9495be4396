// Package gateway implements the external capability gateway: a uniform,
// retrying client façade over all external services (directory/calendar,
// document storage, language generation).
//
// Services register named operations with parameter schemas; callers invoke
// them through Gateway.Invoke, which validates parameters, applies bounded
// exponential backoff with jitter to transient failures and honors
// caller-supplied idempotency keys so retried calls have at-most-one
// downstream effect.
package gateway
