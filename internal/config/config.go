package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"ENV"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL string        `mapstructure:"REDIS_URL"`
	LockWait time.Duration `mapstructure:"LOCK_WAIT"`
	LockTTL  time.Duration `mapstructure:"LOCK_TTL"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	SlotWidthMinutes        int `mapstructure:"SLOT_WIDTH_MINUTES"`
	DefaultOperationMinutes int `mapstructure:"DEFAULT_OPERATION_MINUTES"`

	AlertWebhookURLs   []string `mapstructure:"ALERT_WEBHOOK_URLS"`
	AlertWebhookSecret string   `mapstructure:"ALERT_WEBHOOK_SECRET"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORAGE_BACKEND",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "LOCK_WAIT", "LOCK_TTL",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"SLOT_WIDTH_MINUTES", "DEFAULT_OPERATION_MINUTES",
	"ALERT_WEBHOOK_URLS", "ALERT_WEBHOOK_SECRET",
	"TRACING_ENABLED", "OTLP_ENDPOINT", "TRACE_SAMPLE_RATE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", StoragePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LOCK_WAIT", "2s")
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SLOT_WIDTH_MINUTES", 30)
	v.SetDefault("DEFAULT_OPERATION_MINUTES", 60)
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)

	// Bind explicitly so Unmarshal sees env-only keys
	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.AlertWebhookURLs = splitList(cfg.AlertWebhookURLs)
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	if cfg.StorageBackend == StoragePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList flattens comma-separated env values and trims each entry.
func splitList(vals []string) []string {
	var out []string
	for _, val := range vals {
		for _, v := range strings.Split(val, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// SlotWidth is the appointment slot width.
func (c *Config) SlotWidth() time.Duration {
	return time.Duration(c.SlotWidthMinutes) * time.Minute
}

// DefaultOperationDuration applies when an operation is scheduled without a duration.
func (c *Config) DefaultOperationDuration() time.Duration {
	return time.Duration(c.DefaultOperationMinutes) * time.Minute
}

// Validate rejects settings the service cannot run with. Outside development
// a signing key is mandatory, since DevAuth would otherwise grant admin to
// every caller.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageBackend)
	}
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.SlotWidthMinutes <= 0 || c.SlotWidthMinutes > 240 || (24*60)%c.SlotWidthMinutes != 0 {
		return fmt.Errorf("SLOT_WIDTH_MINUTES must divide a day and be between 1 and 240, got %d", c.SlotWidthMinutes)
	}
	if c.DefaultOperationMinutes < 5 || c.DefaultOperationMinutes > 24*60 {
		return fmt.Errorf("DEFAULT_OPERATION_MINUTES must be between 5 and 1440, got %d", c.DefaultOperationMinutes)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be within [0,1], got %v", c.TraceSampleRate)
	}
	if c.TracingEnabled && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP_ENDPOINT is required when TRACING_ENABLED is true")
	}
	return nil
}
