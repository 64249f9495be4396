// Package router classifies an inbound message into a capability match or a
// clarification request. Classification runs in two stages: cheap rule
// pre-classification (slash commands and keyword rules) that short-circuits
// the model call, then language-generation classification through the
// external capability gateway constrained to the registry's known tags.
// Routing is a pure decision function; it never mutates session or workflow
// state.
package router
