package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"arokya/internal/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	v.Set("JWT_SECRET", "test_jwt_secret")

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppPort)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, "https://api.razorpay.com", cfg.RazorpayBaseURL)
	assert.Equal(t, "none", cfg.TracingExporter)
	assert.Empty(t, cfg.RabbitMQURL)
	assert.False(t, cfg.RecordCreated)
	assert.True(t, cfg.RequestLog)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_TTL", "72h")
	t.Setenv("DATABASE_DRIVER", "POSTGRES")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("LEDGER_RECORD_CREATED", "true")

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, 72*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "USD", cfg.Currency)
	assert.True(t, cfg.RecordCreated)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	v := viper.New()
	v.Set("JWT_TTL", "1h")
	v.Set("DATABASE_DRIVER", "mongodb")

	_, err := config.Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), "JWT_TTL must be between")
	assert.Contains(t, err.Error(), "DATABASE_DRIVER must be sqlite or postgres")
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AROKYA_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AROKYA_TEST_DOTENV") })

	require.NoError(t, config.LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("AROKYA_TEST_DOTENV"))
}
