package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: `
server:
  addr: ":8080"
  read_timeout: 3s
database:
  driver: postgres
  dsn: postgres://localhost/tasks
`,
		},
		{
			name:    "json",
			file:    "config.json",
			content: `{"server":{"addr":":8080","read_timeout":"3s"},"database":{"driver":"postgres","dsn":"postgres://localhost/tasks"}}`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `
[server]
addr = ":8080"
read_timeout = "3s"

[database]
driver = "postgres"
dsn = "postgres://localhost/tasks"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)

			cfg := Default()
			if err := Load(path, &cfg); err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if cfg.Server.Addr != ":8080" {
				t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
			}
			if cfg.Server.ReadTimeout.Duration != 3*time.Second {
				t.Errorf("Server.ReadTimeout = %v, want 3s", cfg.Server.ReadTimeout)
			}
			if cfg.Database.Driver != "postgres" {
				t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
			}
			// Untouched keys keep their defaults
			if cfg.Server.WriteTimeout.Duration != 10*time.Second {
				t.Errorf("Server.WriteTimeout = %v, want default 10s", cfg.Server.WriteTimeout)
			}
		})
	}
}

func TestLoadTOML_UnknownKey(t *testing.T) {
	path := writeFile(t, "config.toml", "[server]\nadress = \":1\"\n")

	cfg := Default()
	err := Load(path, &cfg)
	if err == nil || !strings.Contains(err.Error(), "unknown TOML keys") {
		t.Errorf("Load() error = %v, want unknown key error", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  read_timeout: soon\n")

	cfg := Default()
	if err := Load(path, &cfg); err == nil {
		t.Error("Load() should reject an invalid duration")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TASKLIST_SERVER_ADDR", ":9090")
	t.Setenv("TASKLIST_SERVER_MAX_CCU", "42")
	t.Setenv("TASKLIST_SERVER_WRITE_TIMEOUT", "250ms")
	t.Setenv("TASKLIST_DATABASE_DSN", "file::memory:")
	t.Setenv("TASKLIST_TRACING_SAMPLE_RATIO", "0.5")
	t.Setenv("TASKLIST_OPEN_BROWSER", "true")

	cfg := Default()
	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxCCU != 42 {
		t.Errorf("Server.MaxCCU = %d", cfg.Server.MaxCCU)
	}
	if cfg.Server.WriteTimeout.Duration != 250*time.Millisecond {
		t.Errorf("Server.WriteTimeout = %v", cfg.Server.WriteTimeout)
	}
	if cfg.Database.DSN != "file::memory:" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.Tracing.SampleRatio != 0.5 {
		t.Errorf("Tracing.SampleRatio = %v", cfg.Tracing.SampleRatio)
	}
	if !cfg.OpenBrowser {
		t.Error("OpenBrowser = false, want true")
	}
}

func TestApplyEnvOverrides_Errors(t *testing.T) {
	t.Run("not a pointer", func(t *testing.T) {
		if err := ApplyEnvOverrides(EnvPrefix, Default()); err == nil {
			t.Error("expected error for non-pointer target")
		}
	})

	t.Run("bad integer", func(t *testing.T) {
		t.Setenv("TASKLIST_SERVER_MAX_CCU", "many")
		cfg := Default()
		if err := ApplyEnvOverrides(EnvPrefix, &cfg); err == nil {
			t.Error("expected error for invalid integer")
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("TASKLIST_SERVER_READ_TIMEOUT", "later")
		cfg := Default()
		if err := ApplyEnvOverrides(EnvPrefix, &cfg); err == nil {
			t.Error("expected error for invalid duration")
		}
	})
}

func TestApplyEnvOverrides_Slice(t *testing.T) {
	type target struct {
		Hosts []string `yaml:"hosts"`
		Ports []int    `yaml:"ports"`
	}
	t.Setenv("X_HOSTS", "a, b,c")
	t.Setenv("X_PORTS", "1,2")

	var cfg target
	if err := ApplyEnvOverrides("X", &cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides() error = %v", err)
	}
	if strings.Join(cfg.Hosts, "|") != "a|b|c" {
		t.Errorf("Hosts = %v", cfg.Hosts)
	}
	if len(cfg.Ports) != 2 || cfg.Ports[1] != 2 {
		t.Errorf("Ports = %v", cfg.Ports)
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"defaults", func(*AppConfig) {}, ""},
		{"missing dsn", func(c *AppConfig) { c.Database.DSN = "" }, "Database.DSN"},
		{"unknown driver", func(c *AppConfig) { c.Database.Driver = "mysql" }, "Database.Driver"},
		{"zero open conns", func(c *AppConfig) { c.Database.MaxOpenConns = 0 }, "Database.MaxOpenConns"},
		{"utilization over 100", func(c *AppConfig) { c.Server.UtilizationPercent = 150 }, "Server.UtilizationPercent"},
		{"bad log level", func(c *AppConfig) { c.Log.Level = "loud" }, "Log.Level"},
		{"bad exporter", func(c *AppConfig) { c.Tracing.Exporter = "jaeger" }, "Tracing.Exporter"},
		{"sample ratio", func(c *AppConfig) { c.Tracing.SampleRatio = 2 }, "Tracing.SampleRatio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(&cfg, Validators()...)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_UnknownField(t *testing.T) {
	cfg := Default()
	if err := RequiredFields("Server.Nope").Validate(&cfg); err == nil {
		t.Error("expected error for unknown field path")
	}
	if err := RangeValidator("Server.Addr", 0, 1).Validate(&cfg); err == nil {
		t.Error("expected error for non-numeric field")
	}
	if err := OneOfValidator("x").Validate(42); err == nil {
		t.Error("expected error for non-struct config")
	}
}

func TestLoadApp(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := LoadApp(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadApp() error = %v", err)
		}
		if cfg.Database.DSN != "tasklist.db" {
			t.Errorf("Database.DSN = %q, want default", cfg.Database.DSN)
		}
	})

	t.Run("env wins over file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "log:\n  level: debug\n")
		t.Setenv("TASKLIST_LOG_LEVEL", "warn")

		cfg, err := LoadApp(path)
		if err != nil {
			t.Fatalf("LoadApp() error = %v", err)
		}
		if cfg.Log.Level != "warn" {
			t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
		}
	})

	t.Run("invalid result", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "database:\n  driver: oracle\n")
		if _, err := LoadApp(path); err == nil {
			t.Error("LoadApp() should fail validation")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeFile(t, "config.json", "{not json")
		if _, err := LoadApp(path); err == nil {
			t.Error("LoadApp() should fail on malformed file")
		}
	})
}
