// Package config provides configuration types and defaults for sift.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/sift/internal/log"
)

// Config holds all configuration options for sift.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Stream  StreamConfig  `mapstructure:"stream"`
	History HistoryConfig `mapstructure:"history"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Tracing TracingConfig `mapstructure:"tracing"`
	UI      UIConfig      `mapstructure:"ui"`
}

// ServerConfig describes the research service sift talks to.
type ServerConfig struct {
	// BaseURL is the scheme and host of the service, e.g. http://localhost:8000.
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds non-streaming requests (ask with streaming off, health).
	// Streams are bounded only by cancellation.
	// Default: 5m
	Timeout time.Duration `mapstructure:"timeout"`

	UserAgent string `mapstructure:"user_agent"`

	// ConnectRetries is how many times a failed connection attempt is retried
	// before any response arrives. Nothing is retried once streaming began.
	// Default: 2
	ConnectRetries int `mapstructure:"connect_retries"`
}

// StreamConfig controls the streaming endpoint.
type StreamConfig struct {
	// Enabled selects /api/ask/stream. When false sift calls /api/ask and
	// shows no incremental progress.
	Enabled bool `mapstructure:"enabled"`

	// MaxFrameBytes drops any single frame larger than this.
	// Default: 8 MiB
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
}

// HistoryConfig controls the local run history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Default: ~/.config/sift/history.db
}

// CacheConfig controls the in-memory answer cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/sift/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// UIConfig holds presentation options.
type UIConfig struct {
	Plain         bool   `mapstructure:"plain"`          // Never start the live view
	MarkdownStyle string `mapstructure:"markdown_style"` // "dark" (default), "light", "notty" or "auto"
}

// DefaultConfigDir returns ~/.config/sift or empty string if home dir unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sift")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultHistoryPath returns the default run history database path.
func DefaultHistoryPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "history.db")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        5 * time.Minute,
			UserAgent:      "sift",
			ConnectRetries: 2,
		},
		Stream: StreamConfig{
			Enabled:       true,
			MaxFrameBytes: 8 << 20,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		UI: UIConfig{
			MarkdownStyle: "dark",
		},
	}
}

// Validate checks every section and joins all problems into one error.
func Validate(cfg Config) error {
	return errors.Join(
		ValidateServer(cfg.Server),
		ValidateStream(cfg.Stream),
		ValidateHistory(cfg.History),
		ValidateCache(cfg.Cache),
		ValidateTracing(cfg.Tracing),
		ValidateUI(cfg.UI),
	)
}

// ValidateServer checks the service address and timeouts.
func ValidateServer(server ServerConfig) error {
	if server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	u, err := url.Parse(server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https, got %q", server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.base_url must include a host, got %q", server.BaseURL)
	}
	if server.Timeout < 0 {
		return fmt.Errorf("server.timeout must not be negative, got %v", server.Timeout)
	}
	if server.ConnectRetries < 0 {
		return fmt.Errorf("server.connect_retries must not be negative, got %d", server.ConnectRetries)
	}
	return nil
}

// ValidateStream checks streaming limits. Zero means the decoder default.
func ValidateStream(stream StreamConfig) error {
	if stream.MaxFrameBytes < 0 {
		return fmt.Errorf("stream.max_frame_bytes must not be negative, got %d", stream.MaxFrameBytes)
	}
	return nil
}

// ValidateHistory requires a path when history is on.
func ValidateHistory(history HistoryConfig) error {
	if history.Enabled && history.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	return nil
}

// ValidateCache checks the answer cache TTL.
func ValidateCache(cache CacheConfig) error {
	if cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %v", cache.TTL)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// ValidateUI checks presentation options.
func ValidateUI(ui UIConfig) error {
	switch ui.MarkdownStyle {
	case "", "dark", "light", "notty", "auto":
		return nil
	default:
		return fmt.Errorf("ui.markdown_style must be \"dark\", \"light\", \"notty\", or \"auto\", got %q", ui.MarkdownStyle)
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# sift configuration

server:
  # Research service address
  base_url: http://localhost:8000
  # Timeout for non-streaming requests; streams run until they finish or are cancelled
  timeout: 5m
  user_agent: sift
  # Connection attempts retried before any response arrives
  connect_retries: 2

stream:
  # Use /api/ask/stream and show live pipeline progress
  enabled: true
  # Frames larger than this are dropped
  max_frame_bytes: 8388608

history:
  # Record every finished run in a local SQLite database
  enabled: true
  # path: ~/.config/sift/history.db

cache:
  # Reuse answers to the same question for ttl
  enabled: true
  ttl: 1h

ui:
  # Print progress lines instead of the live view
  plain: false
  # Markdown style for answers: dark, light, notty, auto
  markdown_style: dark

# Tracing (optional)
# tracing:
#   enabled: true
#   exporter: file
#   file_path: ~/.config/sift/traces/traces.jsonl
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
