package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient serves gemini models through the official SDK. The Gemini
// API has no assistant role; history turns map to user/model contents and
// the system message becomes the system instruction.
type GeminiClient struct {
	client      *genai.Client
	model       string
	keys        *KeyPool
	opts        Options
	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a Gemini client for the given model and
// credential pool.
func NewGeminiClient(ctx context.Context, model string, keys *KeyPool, opts Options) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: keys.Current(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  model,
		keys:   keys,
		opts:   opts,
	}, nil
}

// Model returns the model this client serves.
func (c *GeminiClient) Model() string { return c.model }

// AdvanceKey rotates the pool and rebuilds the SDK client on the new key.
func (c *GeminiClient) AdvanceKey() {
	key := c.keys.Advance()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: key})
	if err != nil {
		// Keep the previous client; the retry loop will fail and rotate again.
		return
	}
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
}

// Complete sends a bare prompt as a single user message.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteChat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteChat sends a full role-tagged history.
func (c *GeminiClient) CompleteChat(ctx context.Context, messages []Message) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	c.rateLimit()

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(c.opts.Temperature)),
		MaxOutputTokens: int32(c.opts.MaxTokens),
	}
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}

func (c *GeminiClient) rateLimit() {
	if c.opts.RateLimitDelay <= 0 {
		return
	}
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.opts.RateLimitDelay {
		time.Sleep(c.opts.RateLimitDelay - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
