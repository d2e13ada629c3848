package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapReader serves files from memory.
type mapReader map[string]string

func (m mapReader) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(data), nil
}

func newTestLoader(files mapReader, env map[string]string) *Loader {
	l := NewLoader(files)
	l.getenv = func(k string) string { return env[k] }
	return l
}

const yamlConfig = `
runtime:
  dispatch_rate: 50
  shutdown_timeout: 3s
logging:
  level: debug
  format: json
metrics:
  enabled: true
  addr: 127.0.0.1:9100
agents:
  - name: echo
    kind: echo
  - name: tally
    kind: counter
subscriptions:
  - topic: ticks
    agent: tally
  - topic: log.
    prefix: true
    agent: audit
schedules:
  - name: heartbeat
    spec: "@every 1m"
    topic: ticks
`

const tomlConfig = `
[runtime]
dispatch_rate = 10
dispatch_burst = 5

[logging]
level = "warn"

[tracing]
enabled = true
exporter = "stdout"

[[agents]]
name = "echo"
kind = "echo"

[[schedules]]
name = "nightly"
spec = "0 0 * * *"
topic = "ticks"
source = "cron"
payload = "rollover"
`

func TestLoader_YAML(t *testing.T) {
	cfg, err := newTestLoader(mapReader{"agentrt.yaml": yamlConfig}, nil).Load("agentrt.yaml")
	require.NoError(t, err)

	assert.Equal(t, 50.0, cfg.Runtime.DispatchRate)
	assert.Equal(t, 1, cfg.Runtime.DispatchBurst, "default burst")
	assert.Equal(t, 3*time.Second, cfg.Runtime.ShutdownTimeout)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
	assert.Equal(t, MetricsConfig{Enabled: true, Addr: "127.0.0.1:9100"}, cfg.Metrics)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Equal(t, "agentrt", cfg.Tracing.ServiceName)
	assert.Equal(t, []AgentConfig{{Name: "echo", Kind: "echo"}, {Name: "tally", Kind: "counter"}}, cfg.Agents)
	require.Len(t, cfg.Subscriptions, 2)
	assert.True(t, cfg.Subscriptions[1].Prefix)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "heartbeat", cfg.Schedules[0].Source, "source defaults to the job name")
}

func TestLoader_TOML(t *testing.T) {
	cfg, err := newTestLoader(mapReader{"agentrt.toml": tomlConfig}, nil).Load("agentrt.toml")
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Runtime.DispatchRate)
	assert.Equal(t, 5, cfg.Runtime.DispatchBurst)
	assert.Equal(t, 10*time.Second, cfg.Runtime.ShutdownTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, []ScheduleConfig{{
		Name: "nightly", Spec: "0 0 * * *", Topic: "ticks", Source: "cron", Payload: "rollover",
	}}, cfg.Schedules)
}

func TestLoader_EnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:       "ERROR",
		EnvMetricsAddr:    ":9999",
		EnvTracesExporter: "otlp",
	}
	cfg, err := newTestLoader(mapReader{"c.yml": "logging:\n  level: debug\n"}, env).Load("c.yml")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Addr)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
}

func TestLoader_Errors(t *testing.T) {
	files := mapReader{
		"empty.yaml":   "",
		"bad.yaml":     "runtime: [",
		"unknown.yaml": "runtime:\n  workers: 4\n",
		"unknown.toml": "[runtime]\nworkers = 4\n",
		"conf.json":    "{}",
		"invalid.yaml": "logging:\n  format: xml\n",
	}
	loader := newTestLoader(files, nil)

	_, err := loader.Load("empty.yaml")
	assert.NoError(t, err, "an empty file yields defaults")

	tests := []struct {
		path string
		want string
	}{
		{"missing.yaml", "failed to read config file"},
		{"bad.yaml", "failed to parse config"},
		{"unknown.yaml", "field workers not found"},
		{"unknown.toml", "unknown keys"},
		{"conf.json", "unsupported config format"},
		{"invalid.yaml", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := loader.Load(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	largeFile := filepath.Join(t.TempDir(), "large.yaml")
	data := strings.Repeat("x: value\n", 200000)
	require.NoError(t, os.WriteFile(largeFile, []byte(data), 0600))

	_, err := LoadConfig(largeFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"negative rate", func(c *Config) { c.Runtime.DispatchRate = -1 }, "dispatch_rate"},
		{"agent missing kind", func(c *Config) { c.Agents = []AgentConfig{{Name: "a"}} }, "name and kind are required"},
		{"agent slash", func(c *Config) { c.Agents = []AgentConfig{{Name: "a/b", Kind: "echo"}} }, "must not contain"},
		{"duplicate agent", func(c *Config) {
			c.Agents = []AgentConfig{{Name: "a", Kind: "echo"}, {Name: "a", Kind: "counter"}}
		}, "duplicate name"},
		{"subscription", func(c *Config) { c.Subscriptions = []SubscriptionConfig{{Topic: "t"}} }, "topic and agent"},
		{"schedule", func(c *Config) { c.Schedules = []ScheduleConfig{{Name: "j", Topic: "t"}} }, "name, spec and topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Agents = []AgentConfig{{Name: "echo", Kind: "echo"}}

	path := filepath.Join(dir, "out.yaml")
	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	require.NoError(t, SaveConfig(cfg, filepath.Join(dir, "out.toml")))
	assert.Error(t, SaveConfig(cfg, filepath.Join(dir, "out.ini")))
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	var buf strings.Builder
	logger := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}
