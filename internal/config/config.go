package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Env      string `env:"PP_ENV,notEmpty"`
	HTTPAddr string `env:"PP_HTTP_ADDR" envDefault:":8080"`
	BaseURL  string `env:"PP_BASE_URL,notEmpty"`

	Store     string `env:"PP_STORE" envDefault:"postgres"`
	DBDSN     string `env:"PP_DB_DSN"`
	JWTSecret string `env:"PP_JWT_SECRET,notEmpty"`

	LogLevel string `env:"PP_LOG_LEVEL" envDefault:"info"`

	RateLimitRPM int `env:"PP_RATE_LIMIT_RPM" envDefault:"120"`

	NotifyBuffer        int `env:"PP_NOTIFY_BUFFER" envDefault:"256"`
	InviteRetentionDays int `env:"PP_INVITE_RETENTION_DAYS" envDefault:"30"`

	AssistantURL       string `env:"PP_ASSISTANT_URL"`
	AssistantTimeoutMS int    `env:"PP_ASSISTANT_TIMEOUT_MS" envDefault:"5000"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Env = strings.TrimSpace(cfg.Env)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.DBDSN = strings.TrimSpace(cfg.DBDSN)
	cfg.AssistantURL = strings.TrimRight(strings.TrimSpace(cfg.AssistantURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("PP_ENV must be one of: dev, prod (got: %s)", c.Env)
	}

	switch c.Store {
	case StorePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("PP_DB_DSN is required when PP_STORE=%s", StorePostgres)
		}
	case StoreMemory:
		if c.Env == "prod" {
			return fmt.Errorf("PP_STORE=%s is not allowed in prod", StoreMemory)
		}
	default:
		return fmt.Errorf("PP_STORE must be one of: postgres, memory (got: %s)", c.Store)
	}

	if c.Env == "prod" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("PP_JWT_SECRET must be at least 32 characters (currently %d)", len(c.JWTSecret))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("PP_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("PP_RATE_LIMIT_RPM must be positive (got: %d)", c.RateLimitRPM)
	}
	if c.NotifyBuffer <= 0 {
		return fmt.Errorf("PP_NOTIFY_BUFFER must be positive (got: %d)", c.NotifyBuffer)
	}
	if c.InviteRetentionDays <= 0 {
		return fmt.Errorf("PP_INVITE_RETENTION_DAYS must be positive (got: %d)", c.InviteRetentionDays)
	}
	if c.AssistantTimeoutMS <= 0 || c.AssistantTimeoutMS > 60000 {
		return fmt.Errorf("PP_ASSISTANT_TIMEOUT_MS must be between 1 and 60000 (got: %d)", c.AssistantTimeoutMS)
	}

	return nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// AssistantTimeout is the per-call timeout for the chat assistant.
func (c *Config) AssistantTimeout() time.Duration {
	return time.Duration(c.AssistantTimeoutMS) * time.Millisecond
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"PP_ENV":                   c.Env,
		"PP_HTTP_ADDR":             c.HTTPAddr,
		"PP_BASE_URL":              c.BaseURL,
		"PP_STORE":                 c.Store,
		"PP_DB_DSN":                redactDSN(c.DBDSN),
		"PP_JWT_SECRET":            "[REDACTED]",
		"PP_LOG_LEVEL":             c.LogLevel,
		"PP_RATE_LIMIT_RPM":        fmt.Sprintf("%d", c.RateLimitRPM),
		"PP_NOTIFY_BUFFER":         fmt.Sprintf("%d", c.NotifyBuffer),
		"PP_INVITE_RETENTION_DAYS": fmt.Sprintf("%d", c.InviteRetentionDays),
		"PP_ASSISTANT_URL":         c.AssistantURL,
		"PP_ASSISTANT_TIMEOUT_MS":  fmt.Sprintf("%d", c.AssistantTimeoutMS),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}
