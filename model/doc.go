// Package model defines the normalized language-generation contract used by
// capability handlers and the gateway's llm service, plus a deterministic
// MockModel for tests and examples. Provider adapters live in the
// subpackages model/anthropic and model/openai.
package model
