package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for sessions, workflow instances
// and turns. UUID based so identifiers are safe to mint concurrently.
func NewID() string { return uuid.NewString() }

// Response is what a completed conversational turn hands back to the chat
// front-end adapter. SuggestedActions are optional quick-reply hints; the
// front-end decides how (or whether) to render them.
type Response struct {
	Text             string   `json:"text"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}
