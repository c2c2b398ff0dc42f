// Package config loads collabd's configuration from an optional YAML file
// with environment-variable overrides on top of defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for collabd.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Archive ArchiveConfig `yaml:"archive"`
	Log     LogConfig     `yaml:"log"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s"
// as well as bare integer nanosecond counts.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig holds the listen address and protocol tunables.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	ReadTimeout       Duration `yaml:"readTimeout"`
	WriteTimeout      Duration `yaml:"writeTimeout"`
	HeartbeatInterval Duration `yaml:"heartbeatInterval"`
	ShutdownTimeout   Duration `yaml:"shutdownTimeout"`
	SweepInterval     Duration `yaml:"sweepInterval"`
	MaxMessageSize    int64    `yaml:"maxMessageSize"`
	HistoryLimit      int      `yaml:"historyLimit"`
	MaxSessions       int      `yaml:"maxSessions"`
}

// ArchiveConfig configures the optional S3 transcript archive. Archiving
// is enabled by setting a bucket.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // custom endpoint, e.g. MinIO in dev
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       Duration(60 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
			HeartbeatInterval: Duration(30 * time.Second),
			ShutdownTimeout:   Duration(10 * time.Second),
			SweepInterval:     Duration(30 * time.Second),
			MaxMessageSize:    64 * 1024,
			HistoryLimit:      50,
		},
		Archive: ArchiveConfig{
			Prefix: "sessions",
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers COLLAB_* environment variables over the current values.
func (c *Config) applyEnv() {
	if v := os.Getenv("COLLAB_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("COLLAB_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.MaxSessions = n
		}
	}
	if v := os.Getenv("COLLAB_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.HistoryLimit = n
		}
	}
	if v := os.Getenv("COLLAB_ARCHIVE_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("COLLAB_ARCHIVE_REGION"); v != "" {
		c.Archive.Region = v
	}
	if v := os.Getenv("COLLAB_ARCHIVE_ENDPOINT"); v != "" {
		c.Archive.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" && c.Archive.AccessKeyID == "" {
		c.Archive.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" && c.Archive.SecretAccessKey == "" {
		c.Archive.SecretAccessKey = v
	}
	if v := os.Getenv("COLLAB_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("COLLAB_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: invalid log format %q", c.Log.Format)
	}
	if c.Server.HistoryLimit < 0 {
		return fmt.Errorf("config: historyLimit must not be negative")
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("config: maxSessions must not be negative")
	}
	return nil
}

// SlogLevel maps the configured level string to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
