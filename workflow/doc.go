// Package workflow implements the workflow engine: declarative finite state
// machine definitions, load-time validation, a YAML definition loader with a
// named guard/action catalog, an instance store and the engine that starts,
// advances and cancels workflow instances.
//
// Definitions are immutable at runtime. Each instance advances by looking up
// the transitions leaving its current state for the incoming event,
// evaluating guards in declaration order and applying the first match;
// transition application and state write are atomic, so a failed or timed
// out action never leaves a partially applied transition visible.
package workflow
