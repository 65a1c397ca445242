// Package config loads service configuration from the environment with an
// optional YAML override file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rafflehub/rewards/pkg/logger"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST,default=0.0.0.0"`
	Port int    `yaml:"port" env:"SERVER_PORT,default=8080"`
}

// DatabaseConfig configures the PostgreSQL connection pool.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"DB_DRIVER,default=postgres"`
	DSN             string `yaml:"dsn" env:"DB_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds" env:"DB_CONN_MAX_LIFETIME,default=300"`
}

// MaxLifetime returns the connection max lifetime.
func (c DatabaseConfig) MaxLifetime() time.Duration {
	if c.ConnMaxLifetime <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// RedisConfig configures the cache invalidation backend. An empty Addr
// disables invalidation.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB,default=0"`
	Channel  string `yaml:"channel" env:"REDIS_INVALIDATION_CHANNEL,default=rewards.invalidate"`
}

// AuthConfig configures service and admin authentication.
type AuthConfig struct {
	// APITokens are static bearer tokens accepted for the user-facing API.
	APITokens []string `yaml:"api_tokens" env:"API_TOKENS"`
	// JWTSecret signs admin session tokens (HS256).
	JWTSecret string `yaml:"jwt_secret" env:"ADMIN_JWT_SECRET"`
	// AdminUsername / AdminPasswordHash gate the admin login endpoint.
	// The hash is a bcrypt digest.
	AdminUsername     string `yaml:"admin_username" env:"ADMIN_USERNAME,default=admin"`
	AdminPasswordHash string `yaml:"admin_password_hash" env:"ADMIN_PASSWORD_HASH"`
	// AdminTokenTTLMinutes bounds admin session lifetime.
	AdminTokenTTLMinutes int `yaml:"admin_token_ttl_minutes" env:"ADMIN_TOKEN_TTL_MINUTES,default=60"`
}

// AdminTokenTTL returns the admin session lifetime.
func (c AuthConfig) AdminTokenTTL() time.Duration {
	if c.AdminTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.AdminTokenTTLMinutes) * time.Minute
}

// LedgerConfig holds ledger business-rule knobs.
type LedgerConfig struct {
	// CommissionBps is the referral commission in basis points of the
	// triggering deposit (1000 = 10%).
	CommissionBps int64 `yaml:"commission_bps" env:"REFERRAL_COMMISSION_BPS,default=1000"`
	// PendingTTLHours is the default expiry applied to pending tokens
	// created without an explicit expiry.
	PendingTTLHours int `yaml:"pending_ttl_hours" env:"LEDGER_PENDING_TTL_HOURS,default=72"`
	// SweepIntervalSeconds drives the background expiry sweeper.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" env:"LEDGER_SWEEP_INTERVAL,default=60"`
	// SweepCron schedules the daily full sweep.
	SweepCron string `yaml:"sweep_cron" env:"LEDGER_SWEEP_CRON,default=0 3 * * *"`
}

// PendingTTL returns the default pending-token lifetime.
func (c LedgerConfig) PendingTTL() time.Duration {
	if c.PendingTTLHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.PendingTTLHours) * time.Hour
}

// SweepInterval returns the expiry sweeper tick interval.
func (c LedgerConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RateLimitConfig configures per-caller request throttling.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second" env:"RATE_LIMIT_RPS,default=25"`
	Burst             int `yaml:"burst" env:"RATE_LIMIT_BURST,default=50"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Redis     RedisConfig          `yaml:"redis"`
	Auth      AuthConfig           `yaml:"auth"`
	Ledger    LedgerConfig         `yaml:"ledger"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

// Load reads .env (when present), decodes the environment, and applies an
// optional YAML override named by CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile decodes the environment and then a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := applyFile(&cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks the fields the service cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Ledger.CommissionBps < 0 || c.Ledger.CommissionBps > 10_000 {
		return fmt.Errorf("commission basis points %d out of range", c.Ledger.CommissionBps)
	}
	if c.Ledger.PendingTTLHours <= 0 {
		return fmt.Errorf("pending ttl must be positive")
	}
	return nil
}
