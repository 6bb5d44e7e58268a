// Package config loads observatory configuration from observatory.yaml with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all observatory configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Platform feed client
	Platform PlatformConfig `yaml:"platform"`

	// LLM reasoning service
	LLM LLMConfig `yaml:"llm"`

	// Analytics thresholds
	Analysis AnalysisConfig `yaml:"analysis"`

	// Council roster and screening
	Council CouncilConfig `yaml:"council"`

	// Publication coordinator
	Publish PublishConfig `yaml:"publish"`

	// SQLite storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PlatformConfig configures the Moltbook feed client.
type PlatformConfig struct {
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Timeout  string `yaml:"timeout"`
	PageSize int    `yaml:"page_size"`
}

// LLMConfig configures the OpenRouter reasoning client.
type LLMConfig struct {
	Provider   string `yaml:"provider"` // openrouter
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	// Minimum spacing between requests, for provider rate limits
	MinInterval string `yaml:"min_interval"`
	Referer     string `yaml:"referer"`
	Title       string `yaml:"title"`
}

// AnalysisConfig holds thresholds for the four analytics passes.
type AnalysisConfig struct {
	Meme       MemeConfig       `yaml:"meme"`
	Conflict   ConflictConfig   `yaml:"conflict"`
	Reputation ReputationConfig `yaml:"reputation"`
	Security   SecurityConfig   `yaml:"security"`
}

// MemeConfig configures phrase tracking.
type MemeConfig struct {
	MinTokens     int `yaml:"min_tokens"`      // smallest n-gram window
	MaxTokens     int `yaml:"max_tokens"`      // largest n-gram window
	MinPhraseLen  int `yaml:"min_phrase_len"`  // minimum characters after normalization
	MinAuthors    int `yaml:"min_authors"`     // distinct authors before a phrase surfaces
	MaxCandidates int `yaml:"max_candidates"`  // cap on retained sub-threshold phrases
}

// ConflictConfig configures the dispute state machine.
type ConflictConfig struct {
	EscalationWindow int `yaml:"escalation_window"` // cycles of intensifying hostility before escalated
	MaxIntensity     int `yaml:"max_intensity"`
}

// ReputationConfig configures scoring.
type ReputationConfig struct {
	ShockThreshold float64 `yaml:"shock_threshold"` // |delta| between adjacent batches
}

// SecurityConfig configures injection and spam scanning.
type SecurityConfig struct {
	CampaignThreshold int    `yaml:"campaign_threshold"` // attempts by one actor before campaign alert
	RapidPostCount    int    `yaml:"rapid_post_count"`   // posts within window that count as rapid posting
	RapidPostWindow   string `yaml:"rapid_post_window"`
	DuplicateMinLen   int    `yaml:"duplicate_min_len"` // shortest content considered for duplicate spam
}

// CouncilConfig configures the reviewer council.
type CouncilConfig struct {
	// Model override for deliberation calls; empty means llm.model
	Model string `yaml:"model"`
	// Skip the service for routine-metric reports
	PreScreening bool `yaml:"pre_screening"`
}

// PublishConfig configures the publication coordinator.
type PublishConfig struct {
	OutputDir string `yaml:"output_dir"`
	LockPath  string `yaml:"lock_path"`
	Owner     string `yaml:"owner"`
}

// StorageConfig configures SQLite.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "observatory",
		Version: "0.3.0",

		Platform: PlatformConfig{
			BaseURL:  "https://www.moltbook.com/api/v1",
			Timeout:  "30s",
			PageSize: 100,
		},

		LLM: LLMConfig{
			Provider:    "openrouter",
			Model:       "moonshotai/kimi-k2.5",
			BaseURL:     "https://openrouter.ai/api/v1",
			Timeout:     "120s",
			MaxRetries:  3,
			MinInterval: "100ms",
			Referer:     "https://github.com/moltbook/observatory",
			Title:       "Moltbook Observatory",
		},

		Analysis: AnalysisConfig{
			Meme: MemeConfig{
				MinTokens:     3,
				MaxTokens:     6,
				MinPhraseLen:  10,
				MinAuthors:    3,
				MaxCandidates: 5000,
			},
			Conflict: ConflictConfig{
				EscalationWindow: 2,
				MaxIntensity:     5,
			},
			Reputation: ReputationConfig{
				ShockThreshold: 15.0,
			},
			Security: SecurityConfig{
				CampaignThreshold: 3,
				RapidPostCount:    5,
				RapidPostWindow:   "60s",
				DuplicateMinLen:   40,
			},
		},

		Council: CouncilConfig{
			PreScreening: true,
		},

		Publish: PublishConfig{
			OutputDir: "artifacts",
			LockPath:  ".observatory/run.lock",
		},

		Storage: StorageConfig{
			DatabasePath: "data/observatory.db",
		},

		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
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

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openrouter"
		}
	}
	if model := os.Getenv("OPENROUTER_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if key := os.Getenv("MOLTBOOK_API_KEY"); key != "" {
		c.Platform.APIKey = key
	}
	if url := os.Getenv("MOLTBOOK_API_URL"); url != "" {
		c.Platform.BaseURL = url
	}

	if path := os.Getenv("OBSERVATORY_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if dir := os.Getenv("OBSERVATORY_OUTPUT_DIR"); dir != "" {
		c.Publish.OutputDir = dir
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetLLMMinInterval returns the minimum request spacing as a duration.
func (c *Config) GetLLMMinInterval() time.Duration {
	d, err := time.ParseDuration(c.LLM.MinInterval)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}

// GetPlatformTimeout returns the feed client timeout as a duration.
func (c *Config) GetPlatformTimeout() time.Duration {
	d, err := time.ParseDuration(c.Platform.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRapidPostWindow returns the rapid-posting scan window as a duration.
func (c *Config) GetRapidPostWindow() time.Duration {
	d, err := time.ParseDuration(c.Analysis.Security.RapidPostWindow)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// CouncilModel returns the model used for deliberation calls.
func (c *Config) CouncilModel() string {
	if c.Council.Model != "" {
		return c.Council.Model
	}
	return c.LLM.Model
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openrouter"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENROUTER_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0, got %d", c.LLM.MaxRetries)
	}

	m := c.Analysis.Meme
	if m.MinTokens < 1 || m.MaxTokens < m.MinTokens {
		return fmt.Errorf("invalid meme n-gram window [%d, %d]", m.MinTokens, m.MaxTokens)
	}
	if m.MinAuthors < 1 {
		return fmt.Errorf("meme.min_authors must be >= 1, got %d", m.MinAuthors)
	}

	if c.Analysis.Conflict.EscalationWindow < 1 {
		return fmt.Errorf("conflict.escalation_window must be >= 1, got %d",
			c.Analysis.Conflict.EscalationWindow)
	}

	if c.Analysis.Reputation.ShockThreshold <= 0 {
		return fmt.Errorf("reputation.shock_threshold must be > 0, got %v",
			c.Analysis.Reputation.ShockThreshold)
	}

	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path must be set")
	}
	if c.Publish.OutputDir == "" {
		return fmt.Errorf("publish.output_dir must be set")
	}

	return nil
}
