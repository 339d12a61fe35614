// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or come from flags and the environment.
type Config struct {
	// Batching and chunking
	BatchSize       int `json:"batch_size,omitempty"`        // Questions per batch
	ChunkSize       int `json:"chunk_size,omitempty"`        // Characters per chunk
	ChunkOverlap    int `json:"chunk_overlap,omitempty"`     // Characters shared by adjacent chunks
	MaxChunks       int `json:"max_chunks,omitempty"`        // Upper bound on chunks per document
	MinChunkLength  int `json:"min_chunk_length,omitempty"`  // Shorter chunks are discarded
	QuestionDelayMs int `json:"question_delay_ms,omitempty"` // Pause between questions in a batch

	// Timeouts
	QuestionTimeoutSec int `json:"question_timeout_sec,omitempty"` // Per-question classifier timeout
	RunTimeoutSec      int `json:"run_timeout_sec,omitempty"`      // Whole in-process run timeout
	StaleAfterMin      int `json:"stale_after_min,omitempty"`      // Reaper staleness window

	// Evaluation
	Strategy               string  `json:"strategy,omitempty"`                // single or scan
	InsufficientMultiplier float64 `json:"insufficient_multiplier,omitempty"` // Share of weight for Insufficient
	FallbackMultiplier     float64 `json:"fallback_multiplier,omitempty"`     // Extra reduction for failed questions
	ClassifierRPS          float64 `json:"classifier_rps,omitempty"`          // Classifier requests per second

	// Services
	Model       string `json:"model,omitempty"`        // Gemini model override
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	RedisURL    string `json:"redis_url,omitempty"`    // Redis URL for the distributed lock

	Verbose bool `json:"verbose,omitempty"` // Print detailed debug information
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		BatchSize:              5,
		ChunkSize:              1500,
		ChunkOverlap:           200,
		MaxChunks:              25,
		MinChunkLength:         200,
		QuestionDelayMs:        600,
		QuestionTimeoutSec:     180,
		RunTimeoutSec:          720,
		StaleAfterMin:          30,
		Strategy:               "single",
		InsufficientMultiplier: 0.5,
		FallbackMultiplier:     0.2,
		ClassifierRPS:          2,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Load reads path when non-empty, applies the environment and fills the remaining fields
// from Defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// ApplyEnv overrides fields from the environment. Service URLs and the API key use their
// conventional names; tuning knobs use ASSESS_<FIELD>.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("GEMINI_API_KEY", &c.APIKey)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("ASSESS_MODEL", &c.Model)
	str("ASSESS_STRATEGY", &c.Strategy)

	ints := map[string]*int{
		"ASSESS_BATCH_SIZE":           &c.BatchSize,
		"ASSESS_CHUNK_SIZE":           &c.ChunkSize,
		"ASSESS_CHUNK_OVERLAP":        &c.ChunkOverlap,
		"ASSESS_MAX_CHUNKS":           &c.MaxChunks,
		"ASSESS_MIN_CHUNK_LENGTH":     &c.MinChunkLength,
		"ASSESS_QUESTION_DELAY_MS":    &c.QuestionDelayMs,
		"ASSESS_QUESTION_TIMEOUT_SEC": &c.QuestionTimeoutSec,
		"ASSESS_RUN_TIMEOUT_SEC":      &c.RunTimeoutSec,
		"ASSESS_STALE_AFTER_MIN":      &c.StaleAfterMin,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("config error: %s must be an integer: %w", key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"ASSESS_INSUFFICIENT_MULTIPLIER": &c.InsufficientMultiplier,
		"ASSESS_FALLBACK_MULTIPLIER":     &c.FallbackMultiplier,
		"ASSESS_CLASSIFIER_RPS":          &c.ClassifierRPS,
	}
	for key, dst := range floats {
		if v, ok := lookup(key); ok && v != "" {
			f, err := cast.ToFloat64E(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("config error: %s must be a number: %w", key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup("ASSESS_VERBOSE"); ok && v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("config error: ASSESS_VERBOSE must be a boolean: %w", err)
		}
		c.Verbose = b
	}
	return nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	nonNegative := map[string]int{
		"batch_size":           c.BatchSize,
		"chunk_size":           c.ChunkSize,
		"chunk_overlap":        c.ChunkOverlap,
		"max_chunks":           c.MaxChunks,
		"min_chunk_length":     c.MinChunkLength,
		"question_delay_ms":    c.QuestionDelayMs,
		"question_timeout_sec": c.QuestionTimeoutSec,
		"run_timeout_sec":      c.RunTimeoutSec,
		"stale_after_min":      c.StaleAfterMin,
	}
	for name, v := range nonNegative {
		if v < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}

	if c.ChunkSize > 0 && c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config error: 'chunk_overlap' must be smaller than 'chunk_size'")
	}

	switch strings.ToLower(c.Strategy) {
	case "", "single", "scan":
	default:
		return fmt.Errorf("config error: 'strategy' must be single or scan, got %q", c.Strategy)
	}

	if c.InsufficientMultiplier < 0 || c.InsufficientMultiplier > 1 {
		return fmt.Errorf("config error: 'insufficient_multiplier' must be between 0 and 1")
	}
	if c.FallbackMultiplier < 0 || c.FallbackMultiplier > 1 {
		return fmt.Errorf("config error: 'fallback_multiplier' must be between 0 and 1")
	}
	if c.ClassifierRPS < 0 {
		return fmt.Errorf("config error: 'classifier_rps' must be non-negative")
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Strategy == "" {
		result.Strategy = defaults.Strategy
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.RedisURL == "" {
		result.RedisURL = defaults.RedisURL
	}

	// Int fields: use default if zero
	ints := []struct{ dst, def *int }{
		{&result.BatchSize, &defaults.BatchSize},
		{&result.ChunkSize, &defaults.ChunkSize},
		{&result.ChunkOverlap, &defaults.ChunkOverlap},
		{&result.MaxChunks, &defaults.MaxChunks},
		{&result.MinChunkLength, &defaults.MinChunkLength},
		{&result.QuestionDelayMs, &defaults.QuestionDelayMs},
		{&result.QuestionTimeoutSec, &defaults.QuestionTimeoutSec},
		{&result.RunTimeoutSec, &defaults.RunTimeoutSec},
		{&result.StaleAfterMin, &defaults.StaleAfterMin},
	}
	for _, f := range ints {
		if *f.dst == 0 {
			*f.dst = *f.def
		}
	}

	// Float fields
	if result.InsufficientMultiplier == 0 {
		result.InsufficientMultiplier = defaults.InsufficientMultiplier
	}
	if result.FallbackMultiplier == 0 {
		result.FallbackMultiplier = defaults.FallbackMultiplier
	}
	if result.ClassifierRPS == 0 {
		result.ClassifierRPS = defaults.ClassifierRPS
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// QuestionDelay returns the pause between questions.
func (c *Config) QuestionDelay() time.Duration {
	return time.Duration(c.QuestionDelayMs) * time.Millisecond
}

// QuestionTimeout returns the per-question classifier timeout.
func (c *Config) QuestionTimeout() time.Duration {
	return time.Duration(c.QuestionTimeoutSec) * time.Second
}

// RunTimeout returns the whole-run timeout.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSec) * time.Second
}

// StaleAfter returns the reaper staleness window.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMin) * time.Minute
}
