// Package llm provides the chat-completion layer for Shiya.
//
// The completion service is treated as a pure remote function: one request
// in, one reply text out. No retries are built in — the caller decides how
// to degrade when a call fails. The default implementation talks to any
// OpenAI-compatible chat completions endpoint.
package llm

import "context"

// Message is a single role-tagged entry in a completion request.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string
	// Content is the message text.
	Content string
}

// Request is the input to a single completion call.
type Request struct {
	// Messages is the full ordered context window: system persona first,
	// prior turns in original order, current user input last.
	Messages []Message

	// MaxTokens caps the length of the generated reply. Zero means the
	// provider default.
	MaxTokens int

	// Temperature controls sampling randomness. The zero value is sent
	// as-is, so callers wanting the API default must set it explicitly.
	Temperature float64
}

// Provider generates a reply for an assembled message context.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// A failed call (network error, timeout, API error, empty choice list)
// returns a descriptive error; callers degrade to a fixed fallback reply.
type Provider interface {
	// Complete sends the request to the underlying model and returns the
	// generated text. The text may be empty when the model returns an
	// empty message; callers substitute their own filler.
	Complete(ctx context.Context, req Request) (string, error)
}
