// Package config provides runtime configuration for switchmon.
// It uses Viper to load settings from files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for switchmon.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
	DBDriver   string `mapstructure:"db_driver"` // only "sqlite" for now
	DBPath     string `mapstructure:"db_path"`

	// ── Security ─────────────────────────────────────────────────────────────
	// JWTSecret: HS256 signing key for API tokens.
	// Change this in production; the default is a placeholder.
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminUser string `mapstructure:"admin_user"`
	AdminPass string `mapstructure:"admin_pass"`

	// ── SNMP client ──────────────────────────────────────────────────────────
	// SNMPCommunity is the default community used when a device row does
	// not carry its own. Timeout and retries apply per individual request.
	SNMPCommunity      string `mapstructure:"snmp_community"`
	SNMPTimeoutSeconds int    `mapstructure:"snmp_timeout_seconds"`
	SNMPRetries        int    `mapstructure:"snmp_retries"`
	SNMPWorkers        int    `mapstructure:"snmp_workers"` // concurrent OID fetches per batch

	// ── Collector ────────────────────────────────────────────────────────────
	CollectorIntervalSeconds int `mapstructure:"collector_interval_seconds"`
	CollectorWorkers         int `mapstructure:"collector_workers"` // concurrent device polls per tick
	DevicePageLimit          int `mapstructure:"device_page_limit"`

	// ── Alert evaluator ──────────────────────────────────────────────────────
	EvaluatorIntervalSeconds int `mapstructure:"evaluator_interval_seconds"`
	// SuppressionSeconds is the duplicate-alert lookback window.
	// 0 means "same as evaluator interval".
	SuppressionSeconds int `mapstructure:"suppression_seconds"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// SNMPTimeout returns the per-request SNMP timeout as a duration.
func (c *Config) SNMPTimeout() time.Duration {
	return time.Duration(c.SNMPTimeoutSeconds) * time.Second
}

// CollectorInterval returns the collection tick interval as a duration.
func (c *Config) CollectorInterval() time.Duration {
	return time.Duration(c.CollectorIntervalSeconds) * time.Second
}

// EvaluatorInterval returns the evaluation tick interval as a duration.
func (c *Config) EvaluatorInterval() time.Duration {
	return time.Duration(c.EvaluatorIntervalSeconds) * time.Second
}

// SuppressionWindow returns the alert dedup lookback window, defaulting
// to the evaluator interval when unset.
func (c *Config) SuppressionWindow() time.Duration {
	if c.SuppressionSeconds <= 0 {
		return c.EvaluatorInterval()
	}
	return time.Duration(c.SuppressionSeconds) * time.Second
}

// Validate rejects configurations the core cannot start with.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d out of range", c.ListenPort)
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "" {
		return fmt.Errorf("unsupported db_driver %q (only 'sqlite' is supported)", c.DBDriver)
	}
	if c.SNMPCommunity == "" {
		return fmt.Errorf("snmp_community must not be empty")
	}
	if c.SNMPTimeoutSeconds <= 0 {
		return fmt.Errorf("snmp_timeout_seconds must be positive, got %d", c.SNMPTimeoutSeconds)
	}
	if c.SNMPRetries < 0 {
		return fmt.Errorf("snmp_retries must not be negative, got %d", c.SNMPRetries)
	}
	if c.SNMPWorkers <= 0 {
		return fmt.Errorf("snmp_workers must be positive, got %d", c.SNMPWorkers)
	}
	if c.CollectorIntervalSeconds <= 0 {
		return fmt.Errorf("collector_interval_seconds must be positive, got %d", c.CollectorIntervalSeconds)
	}
	if c.CollectorWorkers <= 0 {
		return fmt.Errorf("collector_workers must be positive, got %d", c.CollectorWorkers)
	}
	if c.EvaluatorIntervalSeconds <= 0 {
		return fmt.Errorf("evaluator_interval_seconds must be positive, got %d", c.EvaluatorIntervalSeconds)
	}
	return nil
}

// Load reads config from file (./config.yaml or ~/.switchmon/config.yaml)
// and falls back to defaults. Environment variables with prefix SWMON_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Defaults ---
	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("listen_port", 8000)
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_path", "switchmon.db")

	// Security defaults. MUST be overridden in production via config.yaml or env vars.
	v.SetDefault("jwt_secret", "Swm0n#kQ8!vR3@xT6^bN1&cJ9*hL5")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")

	v.SetDefault("snmp_community", "public")
	v.SetDefault("snmp_timeout_seconds", 5)
	v.SetDefault("snmp_retries", 3)
	v.SetDefault("snmp_workers", 10)

	v.SetDefault("collector_interval_seconds", 300)
	v.SetDefault("collector_workers", 10)
	v.SetDefault("device_page_limit", 1000)

	v.SetDefault("evaluator_interval_seconds", 60)
	v.SetDefault("suppression_seconds", 0)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.switchmon")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("SWMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}
