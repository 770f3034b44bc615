package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-ledger/config"
	"github.com/warp/commission-ledger/ledger"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, config.DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, time.Hour, cfg.ReconcileInterval)
	assert.True(t, cfg.DefaultCommissionPercentage.Equal(ledger.DefaultSettings().FixedCommissionPercentage))
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.IsType(t, ledger.LazyCreateBrands{}, cfg.BrandPolicy())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_RETRY_WINDOW", "2s")
	t.Setenv("DEFAULT_COMMISSION_PERCENTAGE", "12.5")
	t.Setenv("BRAND_AUTO_CREATE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("RECONCILE_INTERVAL", "0")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.DriverRedis, cfg.StoreDriver)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 2*time.Second, cfg.RedisRetryWindow)
	assert.Equal(t, "12.5", cfg.Settings().FixedCommissionPercentage.String())
	assert.IsType(t, ledger.StrictBrands{}, cfg.BrandPolicy())
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Zero(t, cfg.ReconcileInterval)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres"}},
		{"percentage above 100", map[string]string{"DEFAULT_COMMISSION_PERCENTAGE": "120"}},
		{"negative interval", map[string]string{"RECONCILE_INTERVAL": "-1m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
