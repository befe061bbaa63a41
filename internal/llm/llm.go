// Package llm holds the language-model client layer: an OpenAI-compatible
// chat client, a Gemini client, the provider registry that maps model names
// to backing services, and the Invoker wrapper the negotiation loop consumes.
package llm

import (
	"context"
	"time"
)

// Chat roles shared by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of role-tagged chat context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a single-attempt language-model call. Retries, credential
// rotation and the terminal fallback live in Invoker, not here.
type Client interface {
	// Complete sends a bare prompt as a single user message.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteChat sends a full role-tagged history.
	CompleteChat(ctx context.Context, messages []Message) (string, error)
}

// KeyRotator is implemented by clients backed by a credential pool; the
// Invoker advances the pool between failed attempts.
type KeyRotator interface {
	AdvanceKey()
}

// Options are the generation and resilience knobs shared by all clients.
type Options struct {
	Timeout          time.Duration
	Temperature      float64
	MaxTokens        int
	RateLimitDelay   time.Duration
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultOptions: 1s between requests, five attempts, 2s backoff doubling
// per attempt up to 32s.
func DefaultOptions() Options {
	return Options{
		Timeout:          2 * time.Minute,
		Temperature:      0.7,
		MaxTokens:        1000,
		RateLimitDelay:   time.Second,
		MaxRetries:       5,
		RetryBackoffBase: 2 * time.Second,
		RetryBackoffMax:  32 * time.Second,
	}
}
