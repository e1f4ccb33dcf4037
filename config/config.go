// Package config provides configuration loading, validation and hot
// reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/opkernel/core/resource"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Resources ResourcesConfig `yaml:"resources"`
	ModelsDir string          `yaml:"models_dir"`
}

// AppConfig names the application.
type AppConfig struct {
	Name string `yaml:"name"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// ResourcesConfig declares provider bindings at the four precedence
// levels.
type ResourcesConfig struct {
	// Default is the application-default provider.
	Default *resource.Spec `yaml:"default,omitempty"`

	// APIs binds providers per API group.
	APIs map[string]resource.Spec `yaml:"apis,omitempty"`

	// Tables binds providers per model.
	Tables map[string]resource.Spec `yaml:"tables,omitempty"`

	// Ops binds providers per "model.alias" pair.
	Ops map[string]resource.Spec `yaml:"ops,omitempty"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		App: AppConfig{Name: "opkernel"},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		ModelsDir: "models",
	}
}

// Load reads, overlays and validates a configuration file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment overrides onto the loaded file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPKERNEL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("OPKERNEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPKERNEL_DB"); v != "" {
		if cfg.Resources.Default == nil {
			cfg.Resources.Default = &resource.Spec{Kind: "sqlite"}
		}
		cfg.Resources.Default.DSN = v
	}
	if v := os.Getenv("OPKERNEL_MODELS_DIR"); v != "" {
		cfg.ModelsDir = v
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	for key := range c.Resources.Ops {
		if !strings.Contains(key, ".") {
			return fmt.Errorf("resources.ops key %q must be model.alias", key)
		}
	}

	check := func(scope string, spec resource.Spec) error {
		if spec.Kind == "" {
			return fmt.Errorf("%s: resource kind is required", scope)
		}
		if spec.DSN == "" {
			return fmt.Errorf("%s: resource dsn is required", scope)
		}
		return nil
	}
	if c.Resources.Default != nil {
		if err := check("resources.default", *c.Resources.Default); err != nil {
			return err
		}
	}
	for name, spec := range c.Resources.APIs {
		if err := check("resources.apis."+name, spec); err != nil {
			return err
		}
	}
	for name, spec := range c.Resources.Tables {
		if err := check("resources.tables."+name, spec); err != nil {
			return err
		}
	}
	for name, spec := range c.Resources.Ops {
		if err := check("resources.ops."+name, spec); err != nil {
			return err
		}
	}

	return nil
}
