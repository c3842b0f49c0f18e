// Package config loads gateway configuration from YAML and the environment.
//
// DESIGN: Configuration is resolved in three layers:
//  1. Defaults (Default()).
//  2. An optional YAML file. ${VAR} and ${VAR:-default} references are
//     expanded before parsing so secrets can stay in the environment.
//  3. Well-known environment variables (OPENAI_API_KEY, OPENAI_MODEL,
//     OPENAI_BASE_URL, MAX_RESPONSE_TIME, DEBUG, PORT), which always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elon-ai/dialogue-gateway/internal/usage"
)

// Config is the complete gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Usage      UsageConfig      `yaml:"usage"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Debug      bool             `yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ClientRateLimit int           `yaml:"client_rate_limit"` // chat requests per minute per IP, 0 disables
	AllowedOrigins  []string      `yaml:"allowed_origins"`   // empty = all origins
}

// ProviderConfig holds the completion provider settings.
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"` // empty = api.openai.com
	Timeout time.Duration `yaml:"timeout"`  // non-streaming ceiling
}

// PromptsConfig controls where persona texts come from.
type PromptsConfig struct {
	Dir   string `yaml:"dir"`   // optional override directory for *.md prompt files
	Watch bool   `yaml:"watch"` // reload overrides when files change
}

// MonitoringConfig holds logging and telemetry settings.
type MonitoringConfig struct {
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"` // auto, json, console
	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
	TelemetryPath    string `yaml:"telemetry_path"`
	TelemetryStdout  bool   `yaml:"telemetry_stdout"`  // also log each event line
	ExactTokenCount  bool   `yaml:"exact_token_count"` // use tiktoken for prompt estimates
}

// Default returns a configuration that works with only OPENAI_API_KEY set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultServerWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			ClientRateLimit: DefaultClientRateLimit,
		},
		Provider: ProviderConfig{
			Model:   DefaultModel,
			Timeout: DefaultProviderTimeout,
		},
		Usage: usage.DefaultLimits(),
		Monitoring: MonitoringConfig{
			LogLevel:      DefaultLogLevel,
			LogFormat:     "auto",
			TelemetryPath: DefaultTelemetryPath,
		},
	}
}

// Load reads path (if it exists), applies environment overrides and validates.
// An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			cfg, err = parse(data)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses YAML over the defaults and validates. Environment
// references inside the YAML are expanded; env overrides are not applied.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return cfg, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvWithDefaults replaces ${VAR} and ${VAR:-default}.
// Unset or empty variables without a default expand to "".
func ExpandEnvWithDefaults(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRefPattern.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[3]
	})
}

// ApplyEnv overlays the well-known environment variables using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		c.Provider.APIKey = v
	}
	if v, ok := lookup("OPENAI_MODEL"); ok && v != "" {
		c.Provider.Model = v
	}
	if v, ok := lookup("OPENAI_BASE_URL"); ok && v != "" {
		c.Provider.BaseURL = v
	}
	if v, ok := lookup("MAX_RESPONSE_TIME"); ok && v != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MAX_RESPONSE_TIME must be whole seconds: %w", err)
		}
		c.Provider.Timeout = time.Duration(secs) * time.Second
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DEBUG must be a boolean: %w", err)
		}
		c.Debug = debug
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PORT must be a number: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks the configuration for values the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.ClientRateLimit < 0 {
		return fmt.Errorf("server.client_rate_limit must be >= 0, got %d", c.Server.ClientRateLimit)
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		return errors.New("provider.model must not be empty")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be > 0, got %s", c.Provider.Timeout)
	}
	if err := c.Usage.Validate(); err != nil {
		return err
	}
	switch c.Monitoring.LogFormat {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("monitoring.log_format must be auto, json or console, got %q", c.Monitoring.LogFormat)
	}
	return nil
}

// LogLevel resolves the effective zerolog level name.
func (c *Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	if c.Monitoring.LogLevel == "" {
		return DefaultLogLevel
	}
	return c.Monitoring.LogLevel
}
