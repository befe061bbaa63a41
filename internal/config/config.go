// Package config holds the experiment configuration: model assignments,
// sweep parameters, and LLM client tuning, loaded from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"haggle/internal/llm"
)

// Config holds all haggle configuration.
type Config struct {
	// Models assigns a model identifier to each negotiation role.
	Models ModelsConfig `yaml:"models"`

	// Sweep parameters
	ProductsFile string `yaml:"products_file"`
	OutputDir    string `yaml:"output_dir"`
	MaxTurns     int    `yaml:"max_turns"`
	Experiments  int    `yaml:"experiments"`
	Append       bool   `yaml:"append"`
	Parallel     int    `yaml:"parallel"`

	// LLM client tuning
	LLM LLMConfig `yaml:"llm"`

	// Anomaly scan paths
	Scan ScanConfig `yaml:"scan"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ModelsConfig assigns models to roles. The summary model serves both
// price extraction and outcome classification.
type ModelsConfig struct {
	Buyer   string `yaml:"buyer"`
	Seller  string `yaml:"seller"`
	Summary string `yaml:"summary"`
}

// LLMConfig tunes the shared client behavior.
type LLMConfig struct {
	Timeout          string  `yaml:"timeout"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	RateLimitDelay   string  `yaml:"rate_limit_delay"`
	MaxRetries       int     `yaml:"max_retries"`
	RetryBackoffBase string  `yaml:"retry_backoff_base"`
	RetryBackoffMax  string  `yaml:"retry_backoff_max"`
}

// ScanConfig locates the anomaly scanner's inputs and outputs.
type ScanConfig struct {
	BackupDir  string `yaml:"backup_dir"`
	LogFile    string `yaml:"log_file"`
	ReportFile string `yaml:"report_file"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	opts := llm.DefaultOptions()
	return &Config{
		Models: ModelsConfig{
			Buyer:   "gpt-4o-mini",
			Seller:  "gpt-4o-mini",
			Summary: "gpt-4o-mini",
		},
		ProductsFile: "data/products.json",
		OutputDir:    "results",
		MaxTurns:     30,
		Experiments:  3,
		Parallel:     1,
		LLM: LLMConfig{
			Timeout:          opts.Timeout.String(),
			Temperature:      opts.Temperature,
			MaxTokens:        opts.MaxTokens,
			RateLimitDelay:   opts.RateLimitDelay.String(),
			MaxRetries:       opts.MaxRetries,
			RetryBackoffBase: opts.RetryBackoffBase.String(),
			RetryBackoffMax:  opts.RetryBackoffMax.String(),
		},
		Scan: ScanConfig{
			BackupDir:  "results_backup",
			LogFile:    "logs/post_process_log.txt",
			ReportFile: "analysis/summary_report.csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config over the defaults, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets HAGGLE_* environment variables win over the file.
func (c *Config) applyEnvOverrides() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Models.Buyer, "HAGGLE_BUYER_MODEL")
	set(&c.Models.Seller, "HAGGLE_SELLER_MODEL")
	set(&c.Models.Summary, "HAGGLE_SUMMARY_MODEL")
	set(&c.ProductsFile, "HAGGLE_PRODUCTS_FILE")
	set(&c.OutputDir, "HAGGLE_OUTPUT_DIR")
	set(&c.Logging.Level, "HAGGLE_LOG_LEVEL")
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Models.Buyer == "" || c.Models.Seller == "" || c.Models.Summary == "" {
		return fmt.Errorf("buyer, seller, and summary models are all required")
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1, got %d", c.MaxTurns)
	}
	if c.Experiments < 1 {
		return fmt.Errorf("experiments must be at least 1, got %d", c.Experiments)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if _, err := c.ClientOptions(); err != nil {
		return err
	}
	return nil
}

// ClientOptions converts the duration strings into llm.Options.
func (c *Config) ClientOptions() (llm.Options, error) {
	opts := llm.DefaultOptions()
	opts.Temperature = c.LLM.Temperature
	if c.LLM.MaxTokens > 0 {
		opts.MaxTokens = c.LLM.MaxTokens
	}
	if c.LLM.MaxRetries > 0 {
		opts.MaxRetries = c.LLM.MaxRetries
	}
	parse := func(dst *time.Duration, raw, name string) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		*dst = d
		return nil
	}
	if err := parse(&opts.Timeout, c.LLM.Timeout, "timeout"); err != nil {
		return opts, err
	}
	if err := parse(&opts.RateLimitDelay, c.LLM.RateLimitDelay, "rate_limit_delay"); err != nil {
		return opts, err
	}
	if err := parse(&opts.RetryBackoffBase, c.LLM.RetryBackoffBase, "retry_backoff_base"); err != nil {
		return opts, err
	}
	if err := parse(&opts.RetryBackoffMax, c.LLM.RetryBackoffMax, "retry_backoff_max"); err != nil {
		return opts, err
	}
	return opts, nil
}
