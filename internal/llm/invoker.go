package llm

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FallbackUtterance is substituted after every retry is exhausted so the
// negotiation loop always has a next message to append.
const FallbackUtterance = "I apologize, but I'm currently experiencing some technical difficulties. Let's continue our conversation."

// Invoker is the terminal wrapper the negotiation driver talks to. It
// retries the underlying client with bounded exponential backoff, rotates
// pooled credentials between attempts, and never returns an error: after
// the last attempt it substitutes FallbackUtterance.
type Invoker struct {
	client Client
	model  string
	opts   Options
	log    *zap.Logger
	id     string // correlation id for log lines
}

// NewInvoker resolves the model's provider, loads its credential pool from
// the environment, and builds the matching client.
func NewInvoker(ctx context.Context, model string, opts Options, log *zap.Logger) (*Invoker, error) {
	provider, err := Resolve(model)
	if err != nil {
		return nil, err
	}
	keys, err := NewKeyPoolFromEnv(provider.KeyEnv)
	if err != nil {
		return nil, err
	}

	var client Client
	if provider.Name == ProviderGemini.Name {
		client, err = NewGeminiClient(ctx, model, keys, opts)
		if err != nil {
			return nil, err
		}
	} else {
		client = NewChatClient(provider.BaseURL, model, keys, opts)
	}
	return NewInvokerWithClient(model, client, opts, log), nil
}

// NewInvokerWithClient wraps an already-built client. Used by tests and by
// callers that manage provider construction themselves.
func NewInvokerWithClient(model string, client Client, opts Options, log *zap.Logger) *Invoker {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Invoker{
		client: client,
		model:  model,
		opts:   opts,
		log:    log.With(zap.String("model", model), zap.String("invoker_id", id)),
		id:     id,
	}
}

// Model returns the model identifier this invoker serves.
func (v *Invoker) Model() string { return v.model }

// Respond sends a single-shot prompt.
func (v *Invoker) Respond(ctx context.Context, prompt string) string {
	return v.invoke(ctx, func(ctx context.Context) (string, error) {
		return v.client.Complete(ctx, prompt)
	})
}

// RespondChat sends a full role-tagged history.
func (v *Invoker) RespondChat(ctx context.Context, messages []Message) string {
	return v.invoke(ctx, func(ctx context.Context) (string, error) {
		return v.client.CompleteChat(ctx, messages)
	})
}

func (v *Invoker) invoke(ctx context.Context, call func(context.Context) (string, error)) string {
	attempts := v.opts.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(v.backoff(i))
			if rotator, ok := v.client.(KeyRotator); ok {
				rotator.AdvanceKey()
			}
		}
		start := time.Now()
		text, err := call(ctx)
		if err == nil {
			v.log.Debug("completion ok",
				zap.Int("attempt", i+1),
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("response_len", len(text)))
			return text
		}
		lastErr = err
		v.log.Warn("completion attempt failed",
			zap.Int("attempt", i+1),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
	v.log.Error("all attempts failed, substituting fallback utterance", zap.Error(lastErr))
	return FallbackUtterance
}

// backoff doubles per attempt from the configured base, capped at the
// configured max.
func (v *Invoker) backoff(attempt int) time.Duration {
	base := v.opts.RetryBackoffBase
	if base <= 0 {
		return 0
	}
	d := base << uint(attempt-1)
	if v.opts.RetryBackoffMax > 0 && d > v.opts.RetryBackoffMax {
		d = v.opts.RetryBackoffMax
	}
	return d
}
