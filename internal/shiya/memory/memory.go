// Package memory implements Shiya's per-user conversational memory: a
// bounded short-term exchange history, a deduplicated set of long-lived
// facts, and per-user persona override lines. Documents live in a pluggable
// DocumentStore keyed by user ID; the Store type enforces the invariants
// (history bound, fact dedup, per-user write serialization) on top of it.
package memory

// Turn is one role-tagged utterance in the short-term history.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the utterance text.
	Content string `json:"content"`
}

// UserMemory is the persisted memory document for a single user.
// The zero value is the canonical empty document.
type UserMemory struct {
	// Short is the bounded exchange history, oldest first. An exchange
	// appends a user turn followed by its paired assistant turn.
	Short []Turn `json:"short"`

	// Facts is an insertion-ordered deduplicated set of short stable
	// statements about the user. Facts are only removed by Clear.
	Facts []string `json:"facts"`

	// Persona is an ordered list of persona override lines for this user,
	// deduplicated on append.
	Persona []string `json:"persona"`

	// Count is the number of completed exchanges. Advisory only.
	Count int `json:"count"`
}

// ReferencedUser identifies a user mentioned inside another user's message.
// Their memory may be read for context, never written.
type ReferencedUser struct {
	ID          string
	DisplayName string
}

// DefaultShortMax is the default bound on the short-term history length,
// counted in turns (two turns per exchange).
const DefaultShortMax = 100
