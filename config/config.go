// Package config loads the service configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fx006/diet-train-app/validate"
)

// Config holds the full service configuration.
type Config struct {
	Listen      string          `yaml:"listen"`
	DBPath      string          `yaml:"db_path"`
	UploadDir   string          `yaml:"upload_dir"`
	MaxFileMB   int             `yaml:"max_file_mb"`
	LogLevel    string          `yaml:"log_level"`
	DefaultKind string          `yaml:"default_kind"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Audit       AuditConfig     `yaml:"audit"`
}

// AuditConfig controls the operation audit trail. RetentionDays 0 keeps
// entries forever.
type AuditConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// RateLimitConfig throttles uploads per client IP.
type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxRequests   int  `yaml:"max_requests"`
	WindowSeconds int  `yaml:"window_seconds"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8000",
		DBPath:      "data/dietplan.db",
		UploadDir:   "uploads",
		MaxFileMB:   10,
		LogLevel:    "info",
		DefaultKind: string(validate.KindGeneral),
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   30,
			WindowSeconds: 60,
		},
		Audit: AuditConfig{Enabled: true, RetentionDays: 90},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged
// with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Load builds the effective configuration: defaults, then the YAML file
// named by DIETPLAN_CONFIG when set, then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("DIETPLAN_CONFIG"); path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from PORT, DB_PATH, UPLOAD_DIR, LOG_LEVEL and
// MAX_FILE_MB.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	c.DBPath = env("DB_PATH", c.DBPath)
	c.UploadDir = env("UPLOAD_DIR", c.UploadDir)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("MAX_FILE_MB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_FILE_MB: %w", err)
		}
		c.MaxFileMB = n
	}
	return nil
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log_level %q (use debug, info, warn or error)", c.LogLevel)
	}
	if _, err := validate.ParseKind(c.DefaultKind); err != nil {
		return fmt.Errorf("default_kind: %w", err)
	}
	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSeconds <= 0) {
		return fmt.Errorf("rate_limit: max_requests and window_seconds must be > 0")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit: retention_days must be >= 0")
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// AuditRetention returns the audit retention as a duration; 0 disables cleanup.
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

// Kind returns the default validation kind.
func (c *Config) Kind() validate.Kind {
	k, _ := validate.ParseKind(c.DefaultKind)
	return k
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
