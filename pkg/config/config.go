// Package config loads the agentrt runtime configuration from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MaxFileSize caps the size of a configuration file.
const MaxFileSize = 1 << 20

// Environment variables that override file settings.
const (
	EnvLogLevel       = "AGENTRT_LOG_LEVEL"
	EnvLogFormat      = "AGENTRT_LOG_FORMAT"
	EnvMetricsAddr    = "AGENTRT_METRICS_ADDR"
	EnvTracesExporter = "OTEL_TRACES_EXPORTER"
)

// Config represents the application configuration
type Config struct {
	Runtime       RuntimeConfig        `yaml:"runtime" toml:"runtime"`
	Logging       LoggingConfig        `yaml:"logging" toml:"logging"`
	Metrics       MetricsConfig        `yaml:"metrics" toml:"metrics"`
	Tracing       TracingConfig        `yaml:"tracing" toml:"tracing"`
	Agents        []AgentConfig        `yaml:"agents,omitempty" toml:"agents,omitempty"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions,omitempty" toml:"subscriptions,omitempty"`
	Schedules     []ScheduleConfig     `yaml:"schedules,omitempty" toml:"schedules,omitempty"`
}

// RuntimeConfig holds runtime configuration
type RuntimeConfig struct {
	// DispatchRate caps dequeues per second (0 = unlimited)
	DispatchRate  float64 `yaml:"dispatch_rate" toml:"dispatch_rate"`
	DispatchBurst int     `yaml:"dispatch_burst" toml:"dispatch_burst"`

	// ShutdownTimeout bounds the wait for in-flight work on shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text, json
}

// MetricsConfig controls the observability HTTP server
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Exporter    string `yaml:"exporter" toml:"exporter"` // otlp, stdout, none
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool   `yaml:"insecure" toml:"insecure"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// AgentConfig binds an agent type name to a built-in implementation
type AgentConfig struct {
	Name string `yaml:"name" toml:"name"`
	Kind string `yaml:"kind" toml:"kind"`
}

// SubscriptionConfig routes a topic type (or prefix) to an agent type
type SubscriptionConfig struct {
	Topic  string `yaml:"topic" toml:"topic"`
	Prefix bool   `yaml:"prefix" toml:"prefix"`
	Agent  string `yaml:"agent" toml:"agent"`
}

// ScheduleConfig publishes to a topic on a cron schedule
type ScheduleConfig struct {
	Name    string `yaml:"name" toml:"name"`
	Spec    string `yaml:"spec" toml:"spec"`
	Topic   string `yaml:"topic" toml:"topic"`
	Source  string `yaml:"source" toml:"source"`
	Payload string `yaml:"payload" toml:"payload"`
}

// FileReader interface for reading files (testable)
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader implements FileReader using the local filesystem
type OSFileReader struct{}

func (OSFileReader) ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}
	return os.ReadFile(path) // #nosec G304 - path is operator supplied
}

// Loader reads configuration files through a FileReader
type Loader struct {
	fileReader FileReader
	getenv     func(string) string
}

// NewLoader creates a loader. A nil reader uses the local filesystem.
func NewLoader(fr FileReader) *Loader {
	if fr == nil {
		fr = OSFileReader{}
	}
	return &Loader{fileReader: fr, getenv: os.Getenv}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML or TOML file
func LoadConfig(path string) (*Config, error) {
	return NewLoader(nil).Load(path)
}

// Load reads path, decodes it by extension, applies defaults and
// environment overrides, and validates the result.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := l.fileReader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", len(data), MaxFileSize)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(l.getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data in the given format ("yaml" or "toml") and applies
// defaults. Unknown keys are rejected.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("failed to parse config: unknown keys %v", undecoded)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return strings.TrimPrefix(filepath.Ext(path), ".")
	}
}

func (c *Config) applyDefaults() {
	if c.Runtime.DispatchBurst == 0 {
		c.Runtime.DispatchBurst = 1
	}
	if c.Runtime.ShutdownTimeout == 0 {
		c.Runtime.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "agentrt"
	}
	for i := range c.Schedules {
		if c.Schedules[i].Source == "" {
			c.Schedules[i].Source = c.Schedules[i].Name
		}
	}
}

// ApplyEnv overlays environment overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := getenv(EnvLogFormat); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
	if v := getenv(EnvTracesExporter); v != "" {
		c.Tracing.Exporter = strings.ToLower(v)
		c.Tracing.Enabled = c.Tracing.Exporter != "none"
	}
}

// SaveConfig saves configuration to a YAML or TOML file
func SaveConfig(cfg *Config, path string) error {
	var buf bytes.Buffer
	switch formatOf(path) {
	case "toml":
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	switch c.Tracing.Exporter {
	case "otlp", "stdout", "none":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be otlp, stdout or none, got %q", c.Tracing.Exporter))
	}
	if c.Runtime.DispatchRate < 0 {
		errs = append(errs, fmt.Errorf("runtime.dispatch_rate must not be negative"))
	}
	if c.Runtime.DispatchBurst < 1 {
		errs = append(errs, fmt.Errorf("runtime.dispatch_burst must be at least 1"))
	}

	names := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		switch {
		case a.Name == "" || a.Kind == "":
			errs = append(errs, fmt.Errorf("agents[%d]: name and kind are required", i))
		case strings.Contains(a.Name, "/"):
			errs = append(errs, fmt.Errorf("agents[%d]: name %q must not contain '/'", i, a.Name))
		case names[a.Name]:
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name))
		}
		names[a.Name] = true
	}

	for i, s := range c.Subscriptions {
		if s.Topic == "" || s.Agent == "" {
			errs = append(errs, fmt.Errorf("subscriptions[%d]: topic and agent are required", i))
		}
	}

	jobs := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		switch {
		case s.Name == "" || s.Spec == "" || s.Topic == "":
			errs = append(errs, fmt.Errorf("schedules[%d]: name, spec and topic are required", i))
		case jobs[s.Name]:
			errs = append(errs, fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name))
		}
		jobs[s.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the slog logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
