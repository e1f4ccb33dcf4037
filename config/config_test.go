package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/artpar/opkernel/core/resource"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: kernel-test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Name != "kernel-test" {
		t.Errorf("app name = %q", cfg.App.Name)
	}
	// Unspecified values keep the defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Logging.Level)
	}
	if cfg.ModelsDir != "models" {
		t.Errorf("models dir = %q, want models", cfg.ModelsDir)
	}
}

func TestLoad_Resources(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
resources:
  default:
    kind: sqlite
    dsn: kernel.db
  apis:
    inventory:
      kind: sqlite
      dsn: inventory.db
  tables:
    widget:
      kind: sqlite
      dsn: widgets.db
  ops:
    widget.list:
      kind: sqlite
      dsn: replica.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Resources.Default == nil || cfg.Resources.Default.DSN != "kernel.db" {
		t.Errorf("default = %+v", cfg.Resources.Default)
	}
	if cfg.Resources.APIs["inventory"].DSN != "inventory.db" {
		t.Errorf("apis = %+v", cfg.Resources.APIs)
	}
	if cfg.Resources.Tables["widget"].DSN != "widgets.db" {
		t.Errorf("tables = %+v", cfg.Resources.Tables)
	}
	if cfg.Resources.Ops["widget.list"].DSN != "replica.db" {
		t.Errorf("ops = %+v", cfg.Resources.Ops)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	t.Setenv("OPKERNEL_PORT", "7070")
	t.Setenv("OPKERNEL_LOG_LEVEL", "debug")
	t.Setenv("OPKERNEL_DB", "env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Resources.Default == nil || cfg.Resources.Default.DSN != "env.db" {
		t.Errorf("default = %+v", cfg.Resources.Default)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"port too small", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"console format ok", func(c *Config) { c.Logging.Format = "console" }, false},
		{"ops key without dot", func(c *Config) {
			c.Resources.Ops = map[string]resource.Spec{"widgetlist": {Kind: "sqlite", DSN: "x"}}
		}, true},
		{"resource without kind", func(c *Config) {
			c.Resources.Tables = map[string]resource.Spec{"widget": {DSN: "x"}}
		}, true},
		{"resource without dsn", func(c *Config) {
			c.Resources.Tables = map[string]resource.Spec{"widget": {Kind: "sqlite"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHolder_ReloadKeepsOldOnFailure(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	holder, err := NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder() error = %v", err)
	}
	defer holder.Stop()

	if got := holder.Get().Server.Port; got != 9090 {
		t.Fatalf("port = %d", got)
	}

	// A broken rewrite keeps the old config in place.
	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err == nil {
		t.Error("Reload of invalid config should fail")
	}
	if got := holder.Get().Server.Port; got != 9090 {
		t.Errorf("port after failed reload = %d, want 9090", got)
	}

	// A valid rewrite takes effect and notifies listeners.
	notified := 0
	holder.OnChange(func(c *Config) { notified++ })
	if err := os.WriteFile(path, []byte("server:\n  port: 6060\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := holder.Get().Server.Port; got != 6060 {
		t.Errorf("port after reload = %d, want 6060", got)
	}
	if notified != 1 {
		t.Errorf("listeners notified %d times, want 1", notified)
	}
}
