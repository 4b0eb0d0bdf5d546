package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "retailcore-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 0.15, cfg.Tax.DefaultRate)
	assert.Equal(t, 24*time.Hour, cfg.Policy.CancelWindow)
	assert.Equal(t, float64(5000), cfg.Policy.ElevatedAmountLimit)
	assert.Equal(t, 3, cfg.Policy.ConflictRetries)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	assert.Equal(t, 30*time.Second, cfg.Payment.Timeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, base().validate())
	})

	t.Run("rejects idle conns above open conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MaxIdleConns = 100
		assert.Error(t, cfg.validate())
	})

	t.Run("rejects an out-of-range tax rate", func(t *testing.T) {
		cfg := base()
		cfg.Tax.DefaultRate = 1.5
		assert.Error(t, cfg.validate())
	})

	t.Run("rejects an out-of-range sampling ratio", func(t *testing.T) {
		cfg := base()
		cfg.Telemetry.SamplingRatio = 2.0
		assert.Error(t, cfg.validate())
	})

	t.Run("production requires an approval secret", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		assert.Error(t, cfg.validate())

		cfg.Approval.Secret = "signing-key"
		assert.NoError(t, cfg.validate())
	})

	t.Run("production requires a database password", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		cfg.Approval.Secret = "signing-key"
		cfg.Database.SSLMode = "require"
		assert.Error(t, cfg.validate())

		cfg.Database.Password = "secret"
		assert.NoError(t, cfg.validate())
	})

	t.Run("production rejects wildcard CORS origins", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		cfg.Approval.Secret = "signing-key"
		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		cfg.HTTP.CORSAllowOrigins = []string{"*"}
		assert.Error(t, cfg.validate())
	})
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "retail",
		Password: "p@ss/word",
		DBName:   "retailcore",
		SSLMode:  "require",
	}
	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "db.internal:5432")
	assert.Contains(t, dsn, "sslmode=require")
	// Special characters in the password are escaped.
	assert.NotContains(t, dsn, "p@ss/word")
}
