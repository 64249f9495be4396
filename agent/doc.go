// Package agent implements capability handlers: the units of behavior the
// orchestrator dispatches to once routing has picked a capability. A handler
// answers one invocation given the user message, extracted parameters,
// session context and optional grounding documents.
//
// The package also ships the built-in HR capability set (leave, onboarding,
// recruitment, performance, HR information) with their workflow definitions
// and the guard/action catalog that binds workflow side effects to the
// external capability gateway, plus the llm gateway service that exposes a
// model.Model to the router and the retrieval engine.
package agent
