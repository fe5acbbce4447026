package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, EnvDevelopment, cfg.Server.Environment)
	assert.Equal(t, EventBackendPostgres, cfg.Analytics.EventBackend)
	assert.Equal(t, "session.sid", cfg.Session.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 1000, cfg.Security.GlobalRateLimit)
	assert.Equal(t, time.Hour, cfg.Security.GlobalRateWindow)
	assert.Equal(t, 500, cfg.Security.LoginRateLimit)
	assert.Equal(t, 15*time.Minute, cfg.Security.LoginRateWindow)
	assert.Empty(t, cfg.Analytics.CronSecret)
	assert.Empty(t, cfg.Security.TrustedProxies)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("CRON_SECRET", "s3cret")
	t.Setenv("ANALYTICS_SALT", "pepper")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Analytics.CronSecret)
	assert.Equal(t, "pepper", cfg.Analytics.Salt)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsClickHouseWithoutHost(t *testing.T) {
	t.Setenv("ANALYTICS_EVENT_BACKEND", "clickhouse")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLICKHOUSE_HOST")
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")

	t.Setenv("SESSION_SECRET", "prod-secret")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANALYTICS_SALT")

	t.Setenv("ANALYTICS_SALT", "prod-salt")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestCORSOrigins(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Environment: EnvProduction},
		Security: SecurityConfig{AllowedOrigins: []string{"https://aurelienallenic.fr"}},
	}
	assert.Equal(t, []string{"https://aurelienallenic.fr"}, cfg.CORSOrigins())

	cfg.Server.Environment = EnvDevelopment
	assert.Contains(t, cfg.CORSOrigins(), "http://localhost:5173")
	assert.Contains(t, cfg.CORSOrigins(), "https://aurelienallenic.fr")
}

func TestGoogleCallbackURL(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 3000}}
	assert.Equal(t, "http://localhost:3000/auth/google/callback", cfg.GoogleCallbackURL())

	cfg.Server.BackendURL = "https://api.example.com/"
	assert.Equal(t, "https://api.example.com/auth/google/callback", cfg.GoogleCallbackURL())

	cfg.Google.CallbackURL = "https://override.example.com/cb"
	assert.Equal(t, "https://override.example.com/cb", cfg.GoogleCallbackURL())
}

func TestEncryptionSecretFallsBackToSessionSecret(t *testing.T) {
	cfg := &Config{Session: SessionConfig{Secret: "session"}}
	assert.Equal(t, "session", cfg.EncryptionSecret())

	cfg.Security.EncryptionSecret = "enc"
	assert.Equal(t, "enc", cfg.EncryptionSecret())
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 172.16.0.0/12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.Security.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "load-balancer")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trusted proxy")
}
