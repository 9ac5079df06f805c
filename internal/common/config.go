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
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Limits      LimitsConfig    `toml:"limits"`
	Insights    InsightsConfig  `toml:"insights"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	Retention   RetentionConfig `toml:"retention"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g., "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before discard
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
	JobTimeout        string `toml:"job_timeout"`        // e.g., "10m" - max wall-clock time per job
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type FilesystemConfig struct {
	Uploads string `toml:"uploads"` // Directory for uploaded data files
	Results string `toml:"results"` // Directory for generated result artifacts
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
	AuditFile  string   `toml:"audit_file"`  // JSONL audit trail for model calls (empty disables)
}

// LimitsConfig bounds what the analysis pipeline will accept
type LimitsConfig struct {
	MaxFileSize    int64 `toml:"max_file_size"`   // Maximum upload size in bytes (default: 50MB)
	MaxRows        int   `toml:"max_rows"`        // Rows beyond this are sampled, not loaded
	MaxColumns     int   `toml:"max_columns"`     // Uploads wider than this are rejected
	PreviewRows    int   `toml:"preview_rows"`    // Rows included in prompt previews
	MaxCorrelation int   `toml:"max_correlation"` // Max column pairs reported for correlation
}

// InsightProvider represents the AI provider type
type InsightProvider string

const (
	// InsightProviderGemini uses Google Gemini API
	InsightProviderGemini InsightProvider = "gemini"
	// InsightProviderClaude uses Anthropic Claude API
	InsightProviderClaude InsightProvider = "claude"
)

// InsightsConfig contains unified configuration for insight generation
type InsightsConfig struct {
	DefaultProvider InsightProvider `toml:"default_provider"` // "gemini" or "claude" (default: "claude")
	FewShot         bool            `toml:"few_shot"`         // Include curated examples in prompts
	FewShotCount    int             `toml:"few_shot_count"`   // Examples selected per prompt (default: 3)
	ExamplesDir     string          `toml:"examples_dir"`     // Directory containing example pool YAML files
	MaskPII         bool            `toml:"mask_pii"`         // Mask emails/phones/SSNs in prompt previews
	BreakerWindow   string          `toml:"breaker_window"`   // Failure counting window (default: "300s")
	BreakerTrips    int             `toml:"breaker_trips"`    // Failures within window that open the breaker (default: 5)
	BreakerCooldown string          `toml:"breaker_cooldown"` // Open duration before probing again (default: "600s")
}

// GeminiConfig contains Google Gemini API configuration. Sampling
// temperature is not configurable: providers always generate at zero.
type GeminiConfig struct {
	APIKey    string `toml:"api_key"`    // Google Gemini API key
	Model     string `toml:"model"`      // Model for insight generation (default: "gemini-3-flash-preview")
	MaxTokens int    `toml:"max_tokens"` // Maximum tokens in response (default: 4096)
	Timeout   string `toml:"timeout"`    // Per-call timeout as duration string (default: "2m")
	RateLimit string `toml:"rate_limit"` // Minimum interval between requests (default: "4s" for 15 RPM)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`    // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model     string `toml:"model"`      // Model for insight generation (default: "claude-haiku-3-5-20241022")
	MaxTokens int    `toml:"max_tokens"` // Maximum tokens in response (default: 4096)
	Timeout   string `toml:"timeout"`    // Per-call timeout as duration string (default: "2m")
	RateLimit string `toml:"rate_limit"` // Minimum interval between requests (default: "1s")
}

// RetentionConfig controls the scheduled cleanup of old jobs and artifacts
type RetentionConfig struct {
	Enabled  bool   `toml:"enabled"`  // Enable the retention sweeper
	Schedule string `toml:"schedule"` // Cron schedule format (default: hourly)
	MaxAge   string `toml:"max_age"`  // Terminal jobs older than this are removed (default: "168h")
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in datapilot.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4, // Analysis jobs are CPU and API bound, keep fan-out modest
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "datapilot_jobs",
			JobTimeout:        "10m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Filesystem: FilesystemConfig{
				Uploads: "./data/uploads",
				Results: "./data/results",
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Output:    []string{"stdout", "file"},
			AuditFile: "./logs/model_audit.jsonl",
		},
		Limits: LimitsConfig{
			MaxFileSize:    50 * 1024 * 1024, // 50MB
			MaxRows:        100000,
			MaxColumns:     500,
			PreviewRows:    5,
			MaxCorrelation: 10,
		},
		Insights: InsightsConfig{
			DefaultProvider: InsightProviderClaude,
			FewShot:         true,
			FewShotCount:    3,
			ExamplesDir:     "./prompts/examples",
			MaskPII:         true,
			BreakerWindow:   "300s",
			BreakerTrips:    5,
			BreakerCooldown: "600s",
		},
		Gemini: GeminiConfig{
			APIKey:    "", // User must provide API key (no fallback)
			Model:     "gemini-3-flash-preview",
			MaxTokens: 4096,
			Timeout:   "2m",
			RateLimit: "4s", // Default to 4s (15 RPM) for free tier
		},
		Claude: ClaudeConfig{
			APIKey:    "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:     "claude-haiku-3-5-20241022",
			MaxTokens: 4096,
			Timeout:   "2m",
			RateLimit: "1s",
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Schedule: "0 * * * *", // Hourly
			MaxAge:   "168h",      // 7 days
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
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

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyFlagOverrides applies command-line flag overrides. Flags are the
// highest priority, above config files and environment variables.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: DATAPILOT_ENV, fallback: GO_ENV)
	if env := os.Getenv("DATAPILOT_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("DATAPILOT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DATAPILOT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if pollInterval := os.Getenv("DATAPILOT_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("DATAPILOT_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("DATAPILOT_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("DATAPILOT_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if jobTimeout := os.Getenv("DATAPILOT_QUEUE_JOB_TIMEOUT"); jobTimeout != "" {
		config.Queue.JobTimeout = jobTimeout
	}

	// Storage configuration
	if badgerPath := os.Getenv("DATAPILOT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if uploads := os.Getenv("DATAPILOT_UPLOADS_DIR"); uploads != "" {
		config.Storage.Filesystem.Uploads = uploads
	}
	if results := os.Getenv("DATAPILOT_RESULTS_DIR"); results != "" {
		config.Storage.Filesystem.Results = results
	}

	// Logging configuration
	if level := os.Getenv("DATAPILOT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DATAPILOT_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("DATAPILOT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if auditFile := os.Getenv("DATAPILOT_AUDIT_FILE"); auditFile != "" {
		config.Logging.AuditFile = auditFile
	}

	// Limits configuration
	if maxFileSize := os.Getenv("DATAPILOT_MAX_FILE_SIZE"); maxFileSize != "" {
		if mfs, err := strconv.ParseInt(maxFileSize, 10, 64); err == nil {
			config.Limits.MaxFileSize = mfs
		}
	}
	if maxRows := os.Getenv("DATAPILOT_MAX_ROWS"); maxRows != "" {
		if mr, err := strconv.Atoi(maxRows); err == nil {
			config.Limits.MaxRows = mr
		}
	}

	// Insights configuration
	if provider := os.Getenv("DATAPILOT_INSIGHTS_PROVIDER"); provider != "" {
		config.Insights.DefaultProvider = InsightProvider(provider)
	}
	if fewShot := os.Getenv("DATAPILOT_INSIGHTS_FEW_SHOT"); fewShot != "" {
		if fs, err := strconv.ParseBool(fewShot); err == nil {
			config.Insights.FewShot = fs
		}
	}
	if maskPII := os.Getenv("DATAPILOT_INSIGHTS_MASK_PII"); maskPII != "" {
		if mp, err := strconv.ParseBool(maskPII); err == nil {
			config.Insights.MaskPII = mp
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("DATAPILOT_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("DATAPILOT_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("DATAPILOT_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("DATAPILOT_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if maxTokens := os.Getenv("DATAPILOT_GEMINI_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Gemini.MaxTokens = mt
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("DATAPILOT_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("DATAPILOT_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("DATAPILOT_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("DATAPILOT_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("DATAPILOT_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}

	// Retention configuration
	if enabled := os.Getenv("DATAPILOT_RETENTION_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Retention.Enabled = e
		}
	}
	if schedule := os.Getenv("DATAPILOT_RETENTION_SCHEDULE"); schedule != "" {
		config.Retention.Schedule = schedule
	}
	if maxAge := os.Getenv("DATAPILOT_RETENTION_MAX_AGE"); maxAge != "" {
		config.Retention.MaxAge = maxAge
	}
}

// validateConfig checks duration strings and enum values before startup
func validateConfig(config *Config) error {
	durations := map[string]string{
		"queue.poll_interval":       config.Queue.PollInterval,
		"queue.visibility_timeout":  config.Queue.VisibilityTimeout,
		"queue.job_timeout":         config.Queue.JobTimeout,
		"insights.breaker_window":   config.Insights.BreakerWindow,
		"insights.breaker_cooldown": config.Insights.BreakerCooldown,
		"retention.max_age":         config.Retention.MaxAge,
		"gemini.timeout":            config.Gemini.Timeout,
		"gemini.rate_limit":         config.Gemini.RateLimit,
		"claude.timeout":            config.Claude.Timeout,
		"claude.rate_limit":         config.Claude.RateLimit,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", name, value, err)
		}
	}

	switch config.Insights.DefaultProvider {
	case InsightProviderGemini, InsightProviderClaude:
	default:
		return fmt.Errorf("invalid insights.default_provider: %q (must be %q or %q)",
			config.Insights.DefaultProvider, InsightProviderGemini, InsightProviderClaude)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", config.Server.Port)
	}

	return nil
}

// ParseDurationOr parses a duration string, falling back when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
