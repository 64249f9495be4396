// Package orchestrator coordinates one conversational turn end to end:
// route the message, start or advance workflows, ground informational
// answers with retrieval and hand back a Response. It owns the per-session
// serialization guarantee: all mutation of a session's workflow instances
// runs under that session's lock, while turns of different sessions proceed
// fully in parallel.
package orchestrator
