package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ChatClient talks to any OpenAI-compatible chat completions endpoint
// (openai, deepseek, zhizengzeng). One instance serves one model.
type ChatClient struct {
	baseURL     string
	model       string
	keys        *KeyPool
	opts        Options
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewChatClient creates a client for the given endpoint, model and
// credential pool.
func NewChatClient(baseURL, model string, keys *KeyPool, opts Options) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		keys:    keys,
		opts:    opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Model returns the model this client serves.
func (c *ChatClient) Model() string { return c.model }

// AdvanceKey rotates the credential pool. Called by the Invoker between
// failed attempts.
func (c *ChatClient) AdvanceKey() { c.keys.Advance() }

// Complete sends a bare prompt as a single user message.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteChat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteChat sends a full role-tagged history and returns the assistant
// text of the first choice.
func (c *ChatClient) CompleteChat(ctx context.Context, messages []Message) (string, error) {
	// Auto-apply timeout if the context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	c.rateLimit()

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    normalizeMessages(messages),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.keys.Current())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("API error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// rateLimit enforces the minimum delay between requests to the same
// backing service.
func (c *ChatClient) rateLimit() {
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

// normalizeMessages coerces unknown roles to user and nil-equivalent
// content to the empty string; some providers reject anything else.
func normalizeMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			m.Role = RoleUser
		}
		out = append(out, m)
	}
	return out
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}
