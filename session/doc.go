// Package session provides SessionStore implementations: a process-local
// in-memory store for tests and demo servers, and a Redis store for
// deployments where conversations must survive restarts. Both index sessions
// by participant and expose idle-session listing for the external sweeper.
package session
