// Package config builds the process configuration once at startup.
//
// Configuration is an explicit struct passed to the components that need it,
// never read from the environment ad hoc downstream. Sources, in order of
// precedence: defaults, the optional YAML file named by APM_CONFIG_FILE,
// then environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is consulted when APM_CONFIG_FILE is unset.
const DefaultConfigFile = "/etc/spangraph/apm.yaml"

// Defaults applied after file and environment processing.
const (
	DefaultEndpoint    = "https://otlp.nr-data.net"
	DefaultServiceName = "spangraph-agent"
	DefaultProvider    = "openai"
	DefaultListenAddr  = ":8080"
)

// Config is the complete process configuration.
type Config struct {
	APM        APM        `yaml:"apm"`
	Model      Model      `yaml:"model"`
	Server     Server     `yaml:"server"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
}

// APM configures the telemetry client and the instrumentation policy.
type APM struct {
	// ConfigFile is the YAML overlay location. A missing file is not an
	// error; APM stays disabled unless a license key arrives another way.
	ConfigFile string `env:"APM_CONFIG_FILE" yaml:"-"`

	// LicenseKey enables trace export when present. Absent, every
	// instrumentation call is a no-op and business logic is unaffected.
	LicenseKey string `env:"APM_LICENSE_KEY" yaml:"license_key"`

	// Endpoint is the OTLP trace collector URL.
	Endpoint string `env:"APM_OTLP_ENDPOINT" yaml:"endpoint"`

	// ServiceName identifies this process in the trace backend.
	ServiceName string `env:"APM_SERVICE_NAME" yaml:"service_name"`

	// DisableAutoInstrument switches the HTTP boundary from the hook's
	// automatic middleware to the manual transaction layer.
	DisableAutoInstrument bool `env:"APM_DISABLE_AUTO_INSTRUMENTATION" yaml:"disable_auto_instrumentation"`
}

// Model configures the chat-completion provider.
type Model struct {
	// Provider selects the adapter: "openai" or "anthropic".
	Provider string `env:"MODEL_PROVIDER" yaml:"provider"`

	// Name overrides the adapter's default model identifier.
	Name string `env:"MODEL_NAME" yaml:"name"`

	// Temperature for completions.
	Temperature float64 `env:"MODEL_TEMPERATURE" yaml:"temperature"`

	// OpenAIKey is the OpenAI credential. Absence is not a startup
	// failure; the agent degrades to its echo fallback.
	OpenAIKey string `env:"OPENAI_API_KEY" yaml:"-"`

	// AnthropicKey is the Anthropic credential.
	AnthropicKey string `env:"ANTHROPIC_API_KEY" yaml:"-"`
}

// Server configures the HTTP host.
type Server struct {
	Addr string `env:"LISTEN_ADDR" yaml:"addr"`
}

// Checkpoint configures run-state snapshots.
type Checkpoint struct {
	// Path is the SQLite snapshot database. Empty keeps snapshots
	// in memory only.
	Path string `env:"CHECKPOINT_PATH" yaml:"path"`
}

// Load builds the configuration: the YAML overlay if its file exists, then
// environment variables on top, then defaults for anything still unset.
// A missing overlay file is logged and skipped; it disables nothing by
// itself.
func Load(ctx context.Context, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	path := os.Getenv("APM_CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}

	var cfg Config
	if err := applyFile(&cfg, path, logger); err != nil {
		return Config{}, err
	}

	// Set environment variables win over file values; unset ones leave
	// the file values alone.
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	cfg.applyDefaults()

	if cfg.Model.Provider != "openai" && cfg.Model.Provider != "anthropic" {
		return Config{}, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APM.Endpoint == "" {
		c.APM.Endpoint = DefaultEndpoint
	}
	if c.APM.ServiceName == "" {
		c.APM.ServiceName = DefaultServiceName
	}
	if c.Model.Provider == "" {
		c.Model.Provider = DefaultProvider
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultListenAddr
	}
}

// applyFile overlays cfg with the YAML file at path, when it exists.
func applyFile(cfg *Config, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no APM config file, using environment only",
			slog.String("path", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ModelKey returns the credential for the selected provider.
func (c *Config) ModelKey() string {
	switch c.Model.Provider {
	case "anthropic":
		return c.Model.AnthropicKey
	default:
		return c.Model.OpenAIKey
	}
}
