package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Queue       QueueConfig    `toml:"queue"`
	Upstream    UpstreamConfig `toml:"upstream"`
	LLM         LLMConfig      `toml:"llm"`
	Webhook     WebhookConfig  `toml:"webhook"`
	Logging     LoggingConfig  `toml:"logging"`
	Seed        SeedConfig     `toml:"seed"`
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

// QueueConfig controls the job scheduler and recovery sweeps
type QueueConfig struct {
	WorkerConcurrency int    `toml:"worker_concurrency"` // Number of concurrent workers
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for claimable jobs
	LeaseTTL          string `toml:"lease_ttl"`          // e.g., "90s" - claim lease duration
	HeartbeatInterval string `toml:"heartbeat_interval"` // e.g., "30s" - lease extension cadence
	RecoveryInterval  string `toml:"recovery_interval"`  // e.g., "60s" - periodic recovery sweep cadence
}

// UpstreamConfig controls the moneycontrol holdings client
type UpstreamConfig struct {
	BaseURL      string `toml:"base_url"`      // Holdings API base URL
	MinInterval  string `toml:"min_interval"`  // e.g., "1s" - minimum gap between upstream calls
	Timeout      string `toml:"timeout"`       // e.g., "30s" - per-call HTTP timeout
	FreshnessTTL string `toml:"freshness_ttl"` // e.g., "24h" - cached snapshot validity window
}

// LLMConfig selects and configures the portfolio extraction provider
type LLMConfig struct {
	Provider string `toml:"provider"` // "claude", "gemini", or "" for manual-only parsing
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	Timeout  string `toml:"timeout"` // e.g., "2m" - per-sheet extraction timeout
}

// WebhookConfig controls terminal-state callback delivery
type WebhookConfig struct {
	Attempts int    `toml:"attempts"` // Max delivery attempts
	Backoff  string `toml:"backoff"`  // e.g., "2s" - base backoff, doubled per attempt
	Timeout  string `toml:"timeout"`  // e.g., "10s" - per-attempt HTTP timeout
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// SeedConfig points at directories of seed data loaded on startup
type SeedConfig struct {
	ETFDir string `toml:"etf_dir"` // Directory containing ETF metadata JSON files
}

// NewDefaultConfig returns configuration defaults applied before file and env loading
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/folio",
			},
		},
		Queue: QueueConfig{
			WorkerConcurrency: 5,
			PollInterval:      "1s",
			LeaseTTL:          "90s",
			HeartbeatInterval: "30s",
			RecoveryInterval:  "60s",
		},
		Upstream: UpstreamConfig{
			BaseURL:      "https://mf.moneycontrol.com/service/etf/v1",
			MinInterval:  "1s",
			Timeout:      "30s",
			FreshnessTTL: "24h",
		},
		LLM: LLMConfig{
			Provider: "",
			Timeout:  "2m",
		},
		Webhook: WebhookConfig{
			Attempts: 3,
			Backoff:  "2s",
			Timeout:  "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration: defaults -> files (in order) -> environment
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("FOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("FOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("FOLIO_STORAGE_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if concurrency := os.Getenv("FOLIO_WORKER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.WorkerConcurrency = c
		}
	}

	if baseURL := os.Getenv("FOLIO_UPSTREAM_BASE_URL"); baseURL != "" {
		config.Upstream.BaseURL = baseURL
	}

	if provider := os.Getenv("FOLIO_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if apiKey := os.Getenv("FOLIO_LLM_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("FOLIO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// Duration parses a duration config value, falling back when empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
