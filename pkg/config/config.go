package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config holds all configuration for the application
type Config struct {
	Listen string `koanf:"listen"`

	// Topology source: a JSON snapshot file or the upstream API base URL.
	// Exactly one should be set; the file wins when both are.
	TopologyFile string `koanf:"topology.file"`
	TopologyURL  string `koanf:"topology.url"`
	// WatchTopology re-reads the snapshot file when it changes on disk
	WatchTopology bool `koanf:"topology.watch"`
	// RefreshInterval polls the topology URL; 0 disables polling
	RefreshInterval time.Duration `koanf:"topology.refresh"`

	// Backend "http" proxies path-finding and simulations to BackendURL;
	// "local" computes them in-process from the topology snapshot.
	BackendMode    string        `koanf:"backend.mode"`
	BackendURL     string        `koanf:"backend.url"`
	RequestTimeout time.Duration `koanf:"backend.timeout"`

	// SessionTTL evicts sessions idle longer than this
	SessionTTL time.Duration `koanf:"session.ttl"`

	LogLevel  string `koanf:"log.level"`
	LogFormat string `koanf:"log.format"`

	MetricsEnabled bool `koanf:"metrics.enabled"`

	TracingEnabled  bool    `koanf:"tracing.enabled"`
	TracingExporter string  `koanf:"tracing.exporter"`
	TracingEndpoint string  `koanf:"tracing.endpoint"`
	TracingSample   float64 `koanf:"tracing.sample"`
}

// Validate checks cross-field constraints that koanf cannot express
func (c *Config) Validate() error {
	if c.TopologyFile == "" && c.TopologyURL == "" {
		return fmt.Errorf("either topology.file or topology.url must be set")
	}
	switch c.BackendMode {
	case "local":
	case "http":
		if c.BackendURL == "" {
			return fmt.Errorf("backend.url is required when backend.mode is http")
		}
	default:
		return fmt.Errorf("unknown backend.mode %q (expected http or local)", c.BackendMode)
	}
	return nil
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"listen":           ":8080",
		"topology.file":    "",
		"topology.url":     "",
		"topology.watch":   true,
		"topology.refresh": time.Minute,
		"backend.mode":     "local",
		"backend.url":      "",
		"backend.timeout":  15 * time.Second,
		"session.ttl":      30 * time.Minute,
		"log.level":        "info",
		"log.format":       "compact",
		"metrics.enabled":  true,
		"tracing.enabled":  false,
		"tracing.exporter": "stdout",
		"tracing.endpoint": "",
		"tracing.sample":   1.0,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional) - topoview.toml
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider("topoview.toml"), toml.Parser())

	// 3. Environment Variables
	// Prefix: TOPOVIEW_ (e.g., TOPOVIEW_BACKEND_MODE=http)
	if err := k.Load(env.Provider("TOPOVIEW_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "TOPOVIEW_")), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Flags builds the pflag set mirroring the dotted config keys
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("topoview", pflag.ExitOnError)
	f.String("listen", ":8080", "HTTP listen address")
	f.String("topology.file", "", "Path to a topology snapshot JSON file")
	f.String("topology.url", "", "Base URL of the upstream topology API")
	f.Bool("topology.watch", true, "Reload the snapshot file when it changes")
	f.Duration("topology.refresh", time.Minute, "Polling interval for the topology URL (0 disables)")
	f.String("backend.mode", "local", "Path/what-if backend: local or http")
	f.String("backend.url", "", "Base URL of the HTTP backend")
	f.Duration("backend.timeout", 15*time.Second, "Per-request backend timeout")
	f.Duration("session.ttl", 30*time.Minute, "Idle session eviction timeout")
	f.String("log.level", "info", "Log level: debug, info, warn, error")
	f.String("log.format", "compact", "Log format: compact or json")
	f.Bool("metrics.enabled", true, "Expose prometheus metrics on /metrics")
	f.Bool("tracing.enabled", false, "Enable OpenTelemetry tracing")
	f.String("tracing.exporter", "stdout", "Trace exporter: stdout or otlp")
	f.String("tracing.endpoint", "", "OTLP gRPC endpoint (default localhost:4317)")
	f.Float64("tracing.sample", 1.0, "Trace sampling ratio in [0,1]")
	return f
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
