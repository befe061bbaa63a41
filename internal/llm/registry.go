package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Provider describes a backing service: where to send requests and which
// environment variable holds its credential pool.
type Provider struct {
	Name    string
	BaseURL string // empty for SDK-based providers (gemini)
	KeyEnv  string
}

// Known providers.
var (
	ProviderOpenAI      = Provider{Name: "openai", BaseURL: "https://api.openai.com/v1", KeyEnv: "OPENAI_API_KEY"}
	ProviderDeepSeek    = Provider{Name: "deepseek", BaseURL: "https://api.deepseek.com/v1", KeyEnv: "DEEPSEEK_API_KEY"}
	ProviderZhizengzeng = Provider{Name: "zhizengzeng", BaseURL: "https://api.zhizengzeng.com/v1", KeyEnv: "ZHI_API_KEY"}
	ProviderGemini      = Provider{Name: "gemini", KeyEnv: "GEMINI_API_KEY"}
)

// dispatchRules map a model-name substring to its provider, first match
// wins. Resolved once at Invoker construction.
var dispatchRules = []struct {
	substr   string
	provider Provider
}{
	{"gpt", ProviderOpenAI},
	{"deepseek", ProviderDeepSeek},
	{"qwen", ProviderZhizengzeng},
	{"llama", ProviderZhizengzeng},
	{"gemini", ProviderGemini},
}

// Resolve maps a model name to its provider descriptor.
func Resolve(model string) (Provider, error) {
	lower := strings.ToLower(model)
	for _, rule := range dispatchRules {
		if strings.Contains(lower, rule.substr) {
			return rule.provider, nil
		}
	}
	return Provider{}, fmt.Errorf("unsupported model: %s", model)
}

// KeyPool is a rotating set of API credentials. Advance moves to the next
// key after a failed request so sustained failures cycle the whole pool.
type KeyPool struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyPool builds a pool from explicit keys.
func NewKeyPool(keys ...string) (*KeyPool, error) {
	var cleaned []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			cleaned = append(cleaned, k)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("no API keys available")
	}
	return &KeyPool{keys: cleaned}, nil
}

// NewKeyPoolFromEnv reads a comma-separated credential pool from envVar.
func NewKeyPoolFromEnv(envVar string) (*KeyPool, error) {
	raw := os.Getenv(envVar)
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("no API keys available: %s is not set", envVar)
	}
	return NewKeyPool(strings.Split(raw, ",")...)
}

// Current returns the active key.
func (p *KeyPool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.idx]
}

// Advance rotates to the next key and returns it.
func (p *KeyPool) Advance() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = (p.idx + 1) % len(p.keys)
	return p.keys[p.idx]
}

// Size returns the number of pooled keys.
func (p *KeyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}
