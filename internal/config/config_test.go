package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stencil.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("api.port = %d", cfg.API.Port)
	}
	if cfg.Runner.Timeout != 60*time.Second || cfg.Runner.Parallelism != 1 || cfg.Runner.Retention != 1000 {
		t.Errorf("runner = %+v", cfg.Runner)
	}
	if cfg.Bus.Buffer != 256 {
		t.Errorf("bus.buffer = %d", cfg.Bus.Buffer)
	}
	if cfg.DB.URL != "" || cfg.RabbitMQ.URL != "" {
		t.Errorf("external services should be off by default: %q %q", cfg.DB.URL, cfg.RabbitMQ.URL)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
  format: text
api:
  port: 9090
flows:
  dir: ./flows
runner:
  timeout: 5s
  parallelism: 4
  continue_on_failure: true
  retention: 50
`)

	t.Setenv("STENCIL_API_PORT", "9191")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("DB_URL", "postgresql://u:p@db:5432/stencil")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"env overrides file", cfg.API.Port, 9191},
		{"legacy env name", cfg.Log.Level, "warn"},
		{"file value", cfg.Log.Format, "text"},
		{"legacy db url", cfg.DB.URL, "postgresql://u:p@db:5432/stencil"},
		{"duration", cfg.Runner.Timeout, 5 * time.Second},
		{"parallelism", cfg.Runner.Parallelism, 4},
		{"bool", cfg.Runner.ContinueOnFailure, true},
		{"retention", cfg.Runner.Retention, 50},
		{"flows dir", cfg.Flows.Dir, "./flows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STENCIL_LOG_LEVEL", "error")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log.level = %q, want error", cfg.Log.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("explicit file missing", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeFile(t, "runner:\n  parallelism: 0\napi:\n  port: 70000\n")
		_, err := Load(path)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("non-positive retention", func(t *testing.T) {
		path := writeFile(t, "runner:\n  retention: -1\n")
		_, err := Load(path)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
