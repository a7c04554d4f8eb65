// Package llm defines a minimal chat-completion contract for the text models
// used by the orchestrator's classification path.
//
// It is intentionally much narrower than the realtime package: the classifier
// needs a single system+user prompt answered with a short completion, nothing
// more.
package llm

import "context"

// Request describes one chat completion.
type Request struct {
	// System is the system prompt.
	System string

	// User is the user message to complete against.
	User string

	// Temperature controls sampling randomness. Zero means deterministic,
	// which is what classification wants.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int
}

// Client produces chat completions.
type Client interface {
	// Complete returns the model's completion text for the request. The
	// context deadline bounds the call; implementations must not outlive it.
	Complete(ctx context.Context, req Request) (string, error)
}
