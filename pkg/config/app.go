package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
)

// EnvPrefix prefixes every environment override, e.g. TASKLIST_SERVER_ADDR
const EnvPrefix = "TASKLIST"

// AppConfig is the complete tasklist configuration
type AppConfig struct {
	Server      ServerConfig   `yaml:"server" json:"server" toml:"server"`
	Database    DatabaseConfig `yaml:"database" json:"database" toml:"database"`
	Log         LogConfig      `yaml:"log" json:"log" toml:"log"`
	Tracing     TracingConfig  `yaml:"tracing" json:"tracing" toml:"tracing"`
	Events      EventsConfig   `yaml:"events" json:"events" toml:"events"`
	OpenBrowser bool           `yaml:"open_browser" json:"open_browser" toml:"open_browser"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr               string   `yaml:"addr" json:"addr" toml:"addr"`
	ReadTimeout        Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	MaxCCU             int      `yaml:"max_ccu" json:"max_ccu" toml:"max_ccu"`
	UtilizationPercent int      `yaml:"utilization_percent" json:"utilization_percent" toml:"utilization_percent"`
}

// DatabaseConfig configures the connection pool
type DatabaseConfig struct {
	Driver          string   `yaml:"driver" json:"driver" toml:"driver"`
	DSN             string   `yaml:"dsn" json:"dsn" toml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns" json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns" json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" toml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" toml:"conn_max_idle_time"`
}

// LogConfig configures core.Logger
type LogConfig struct {
	Level string `yaml:"level" json:"level" toml:"level"`
	File  string `yaml:"file" json:"file" toml:"file"`
	JSON  bool   `yaml:"json" json:"json" toml:"json"`
}

// TracingConfig selects the span exporter
type TracingConfig struct {
	Exporter    string  `yaml:"exporter" json:"exporter" toml:"exporter"`
	ZipkinURL   string  `yaml:"zipkin_url" json:"zipkin_url" toml:"zipkin_url"`
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio" toml:"sample_ratio"`
}

// EventsConfig configures task change notifications.
// Empty NATSURL and JournalFile disable the respective sink.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" json:"nats_url" toml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix" toml:"subject_prefix"`
	JournalFile   string `yaml:"journal_file" json:"journal_file" toml:"journal_file"`
	JournalFsync  bool   `yaml:"journal_fsync" json:"journal_fsync" toml:"journal_fsync"`
}

// Default returns the configuration used when no file is given
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Addr:               "127.0.0.1:5000",
			ReadTimeout:        Duration{10 * time.Second},
			WriteTimeout:       Duration{10 * time.Second},
			MaxCCU:             500,
			UtilizationPercent: 67,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "tasklist.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: Duration{0},
			ConnMaxIdleTime: Duration{0},
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			ZipkinURL:   "http://localhost:9411/api/v2/spans",
			SampleRatio: 1.0,
		},
		Events: EventsConfig{
			SubjectPrefix: "tasklist",
		},
	}
}

// Validators returns the checks applied to an AppConfig
func Validators() []Validator {
	return []Validator{
		RequiredFields("Server.Addr", "Database.Driver", "Database.DSN"),
		OneOfValidator("Database.Driver", "sqlite3", "postgres", "pgx"),
		RangeValidator("Database.MaxOpenConns", 1, 1000),
		RangeValidator("Database.MaxIdleConns", 0, 1000),
		RangeValidator("Server.MaxCCU", 1, 1000000),
		RangeValidator("Server.UtilizationPercent", 1, 100),
		OneOfValidator("Log.Level", "debug", "info", "warn", "error"),
		OneOfValidator("Tracing.Exporter", "none", "stdout", "zipkin"),
		RangeValidator("Tracing.SampleRatio", 0, 1),
	}
}

// LoadApp builds the effective configuration: defaults, then the file at path
// (skipped when path is empty or the file does not exist), then TASKLIST_* env vars.
func LoadApp(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		if err := Load(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	if err := Validate(&cfg, Validators()...); err != nil {
		return cfg, err
	}
	return cfg, nil
}
