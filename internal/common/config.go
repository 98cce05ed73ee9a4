package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Workers     WorkersConfig   `toml:"workers"`
	Cache       CacheConfig     `toml:"cache"`
	Resources   ResourcesConfig `toml:"resources"`
	Webhook     WebhookConfig   `toml:"webhook"`
	Batch       BatchConfig     `toml:"batch"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Limits      LimitsConfig    `toml:"limits"`
	Claude      ClaudeConfig    `toml:"claude"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// WorkersConfig controls the job execution pool
type WorkersConfig struct {
	Concurrency int `toml:"concurrency"` // Number of concurrent job workers
	QueueDepth  int `toml:"queue_depth"` // Buffered dispatch queue size
}

// CacheConfig controls result caching and the bypass write policy.
// WriteOnBypass is the single flag governing use_cache=false submissions:
// the read is always skipped, and when WriteOnBypass is true a successful
// compute still populates the cache for later cached reads.
type CacheConfig struct {
	WriteOnBypass bool   `toml:"write_on_bypass"` // Populate cache even when a job bypassed the read
	TTL           string `toml:"ttl"`             // e.g. "168h" - entries older than this are swept
}

// ResourcesConfig holds the weights for total unit accounting
type ResourcesConfig struct {
	ComputeWeight float64 `toml:"compute_weight"` // Weight applied to compute units (default 1.0)
	StorageWeight float64 `toml:"storage_weight"` // Weight applied to storage units (default 1.0)
}

// WebhookConfig controls callback delivery
type WebhookConfig struct {
	MaxAttempts    int     `toml:"max_attempts"`    // Delivery attempt ceiling
	InitialBackoff string  `toml:"initial_backoff"` // e.g. "1s" - doubles per attempt
	Timeout        string  `toml:"timeout"`         // Per-request timeout
	RatePerSecond  float64 `toml:"rate_per_second"` // Outbound delivery rate limit
}

// Batch delete policies
const (
	BatchDeleteDetach  = "detach"
	BatchDeleteCascade = "cascade"
)

// BatchConfig controls batch deletion semantics
type BatchConfig struct {
	DeletePolicy string `toml:"delete_policy"` // "detach" or "cascade"
}

// SchedulerConfig controls background maintenance
type SchedulerConfig struct {
	Enabled            bool   `toml:"enabled"`
	StaleJobSchedule   string `toml:"stale_job_schedule"`   // Cron schedule for stale job detection
	StaleJobThreshold  string `toml:"stale_job_threshold"`  // e.g. "10m" - running jobs without heartbeat
	CacheSweepSchedule string `toml:"cache_sweep_schedule"` // Cron schedule for expired cache sweep
}

// LimitsConfig holds processor input ceilings
type LimitsConfig struct {
	MaxFileBytes int64 `toml:"max_file_bytes"` // Max input file size
	MaxPDFPages  int   `toml:"max_pdf_pages"`  // Max PDF page count
	MaxTextChars int   `toml:"max_text_chars"` // Max inline text length for transformer/story
}

// ClaudeConfig holds Anthropic API settings for the transformer and story processors
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	Timeout   string `toml:"timeout"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// DefaultConfig returns the configuration defaults applied before any file
// or environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8765,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/tracto",
				ResetOnStartup: false,
			},
		},
		Workers: WorkersConfig{
			Concurrency: 4,
			QueueDepth:  256,
		},
		Cache: CacheConfig{
			WriteOnBypass: true,
			TTL:           "168h",
		},
		Resources: ResourcesConfig{
			ComputeWeight: 1.0,
			StorageWeight: 1.0,
		},
		Webhook: WebhookConfig{
			MaxAttempts:    5,
			InitialBackoff: "1s",
			Timeout:        "10s",
			RatePerSecond:  10,
		},
		Batch: BatchConfig{
			DeletePolicy: BatchDeleteDetach,
		},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			StaleJobSchedule:   "*/5 * * * *",
			StaleJobThreshold:  "10m",
			CacheSweepSchedule: "0 * * * *",
		},
		Limits: LimitsConfig{
			MaxFileBytes: 50 * 1024 * 1024,
			MaxPDFPages:  500,
			MaxTextChars: 200000,
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 8192,
			Timeout:   "120s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadConfig loads configuration with precedence:
// defaults -> config files (in order) -> environment variables.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// runtime failures deep inside a component.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Workers.Concurrency <= 0 {
		return fmt.Errorf("workers.concurrency must be positive, got %d", c.Workers.Concurrency)
	}
	if c.Resources.ComputeWeight < 0 || c.Resources.StorageWeight < 0 {
		return fmt.Errorf("resource weights cannot be negative")
	}
	switch c.Batch.DeletePolicy {
	case BatchDeleteDetach, BatchDeleteCascade:
	default:
		return fmt.Errorf("batch.delete_policy must be \"detach\" or \"cascade\", got %q", c.Batch.DeletePolicy)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache.ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Webhook.InitialBackoff); err != nil {
		return fmt.Errorf("invalid webhook.initial_backoff: %w", err)
	}
	if _, err := time.ParseDuration(c.Webhook.Timeout); err != nil {
		return fmt.Errorf("invalid webhook.timeout: %w", err)
	}
	if c.Webhook.MaxAttempts <= 0 {
		return fmt.Errorf("webhook.max_attempts must be positive, got %d", c.Webhook.MaxAttempts)
	}
	if c.Scheduler.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Scheduler.StaleJobSchedule); err != nil {
			return fmt.Errorf("invalid scheduler.stale_job_schedule: %w", err)
		}
		if _, err := parser.Parse(c.Scheduler.CacheSweepSchedule); err != nil {
			return fmt.Errorf("invalid scheduler.cache_sweep_schedule: %w", err)
		}
		if _, err := time.ParseDuration(c.Scheduler.StaleJobThreshold); err != nil {
			return fmt.Errorf("invalid scheduler.stale_job_threshold: %w", err)
		}
	}
	return nil
}

// CacheTTL returns the parsed cache entry TTL.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 168 * time.Hour
	}
	return d
}

// applyEnvOverrides applies TRACTO_* environment variables over the loaded config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRACTO_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("TRACTO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRACTO_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TRACTO_STORAGE_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("TRACTO_WORKERS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Concurrency = n
		}
	}
	if v := os.Getenv("TRACTO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRACTO_CLAUDE_API_KEY"); v != "" {
		cfg.Claude.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Claude.APIKey == "" {
		cfg.Claude.APIKey = v
	}
	if v := os.Getenv("TRACTO_CACHE_WRITE_ON_BYPASS"); v != "" {
		cfg.Cache.WriteOnBypass = strings.EqualFold(v, "true") || v == "1"
	}
}

// IsDevelopment returns true when running in development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}
