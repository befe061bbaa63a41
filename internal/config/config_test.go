package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "haggle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  buyer: deepseek-chat
  seller: gpt-4o
max_turns: 10
llm:
  timeout: 30s
  temperature: 0.2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "deepseek-chat", cfg.Models.Buyer)
	assert.Equal(t, "gpt-4o", cfg.Models.Seller)
	// Unset fields keep their defaults.
	assert.Equal(t, Default().Models.Summary, cfg.Models.Summary)
	assert.Equal(t, 10, cfg.MaxTurns)
	assert.Equal(t, Default().Experiments, cfg.Experiments)

	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 0.2, opts.Temperature)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [unclosed"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HAGGLE_BUYER_MODEL", "qwen-max")
	t.Setenv("HAGGLE_OUTPUT_DIR", "/tmp/haggle-out")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "qwen-max", cfg.Models.Buyer)
	assert.Equal(t, "/tmp/haggle-out", cfg.OutputDir)
	assert.Equal(t, Default().Models.Seller, cfg.Models.Seller)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Models.Summary = ""
	assert.ErrorContains(t, cfg.Validate(), "models")

	cfg = Default()
	cfg.MaxTurns = 0
	assert.ErrorContains(t, cfg.Validate(), "max_turns")

	cfg = Default()
	cfg.LLM.RateLimitDelay = "soon"
	assert.ErrorContains(t, cfg.Validate(), "rate_limit_delay")
}

func TestClientOptionsEmptyDurationsKeepDefaults(t *testing.T) {
	cfg := Default()
	cfg.LLM.Timeout = ""
	cfg.LLM.RetryBackoffBase = ""

	opts, err := cfg.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, opts.Timeout)
	assert.Equal(t, 2*time.Second, opts.RetryBackoffBase)
}
