// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-ledger/ledger"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds runtime configuration for the server.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"commission.db"`
	PGDSN       string `envconfig:"PG_DSN"`

	RedisAddr        string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix      string        `envconfig:"REDIS_PREFIX" default:"commission"`
	RedisRetryWindow time.Duration `envconfig:"REDIS_RETRY_WINDOW" default:"5s"`

	DefaultCommissionPercentage decimal.Decimal `envconfig:"DEFAULT_COMMISSION_PERCENTAGE" default:"10"`
	CompanyName                 string          `envconfig:"COMPANY_NAME" default:"My Commission System"`
	BrandAutoCreate             bool            `envconfig:"BRAND_AUTO_CREATE" default:"true"`

	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1h"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverRedis, DriverMemory:
	case DriverPostgres:
		if strings.TrimSpace(c.PGDSN) == "" {
			return fmt.Errorf("config: PG_DSN is required for the %s driver", DriverPostgres)
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if err := ledger.ValidatePercentage(c.DefaultCommissionPercentage); err != nil {
		return fmt.Errorf("config: DEFAULT_COMMISSION_PERCENTAGE: %w", err)
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("config: RECONCILE_INTERVAL must not be negative")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// IsProduction returns true when the server runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Settings are the ledger defaults used until settings are saved.
func (c *Config) Settings() ledger.Settings {
	return ledger.Settings{
		FixedCommissionPercentage: c.DefaultCommissionPercentage,
		CompanyName:               c.CompanyName,
	}
}

// BrandPolicy maps BRAND_AUTO_CREATE to the ledger's brand policy.
func (c *Config) BrandPolicy() ledger.BrandPolicy {
	if c.BrandAutoCreate {
		return ledger.LazyCreateBrands{}
	}
	return ledger.StrictBrands{}
}
