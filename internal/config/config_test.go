package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	c := Defaults()

	assert.Equal(t, ":4000", c.HTTPAddr)
	assert.Equal(t, "/api/users", c.APIPrefix)
	assert.Equal(t, DriverMemory, c.StoreDriver)
	assert.Equal(t, 15*time.Minute, c.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTTL)
	assert.True(t, c.CookieSecure)
	assert.False(t, c.RefreshRotation)
	assert.Equal(t, time.Minute, c.MetricsLogInterval)
	assert.Empty(t, c.JWTSecret)
}

func TestLoadMetricsLogInterval(t *testing.T) {
	c, err := Load(nil, envMap(map[string]string{"JWT_SECRET": "x", "METRICS_LOG_INTERVAL": "0"}))
	require.NoError(t, err)
	assert.Zero(t, c.MetricsLogInterval)

	c, err = Load(nil, envMap(map[string]string{"JWT_SECRET": "x", "METRICS_LOG_INTERVAL": "30s"}))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, c.MetricsLogInterval)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load(nil, envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	c, err := Load(nil, envMap(map[string]string{
		"JWT_SECRET":         "s3cr3t",
		"JWT_ACCESS_EXPIRY":  "900",
		"JWT_REFRESH_EXPIRY": "7d",
		"STORE_DRIVER":       "redis",
		"REDIS_ADDR":         "redis:6379",
		"CORS_ORIGINS":       "https://vita-drop.vercel.app, http://localhost:3000",
		"COOKIE_SECURE":      "false",
		"REFRESH_ROTATION":   "true",
		"API_PREFIX":         "/api/v2/users",
	}))
	require.NoError(t, err)

	assert.Equal(t, "s3cr3t", c.JWTSecret)
	assert.Equal(t, 15*time.Minute, c.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTTL)
	assert.Equal(t, DriverRedis, c.StoreDriver)
	assert.Equal(t, "redis:6379", c.RedisAddr)
	assert.Equal(t, []string{"https://vita-drop.vercel.app", "http://localhost:3000"}, c.CORSOrigins)
	assert.False(t, c.CookieSecure)
	assert.True(t, c.RefreshRotation)
	assert.Equal(t, "/api/v2/users", c.APIPrefix)
}

func TestLoadLayerOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitaauth.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"http_addr": ":5000",
		"jwt_secret": "from-file",
		"jwt_access_expiry": "10m",
		"store_driver": "postgres",
		"database_url": "postgres://localhost/vita"
	}`), 0o600))

	c, err := Load(
		[]string{"-config", path, "-addr", ":6000"},
		envMap(map[string]string{"JWT_SECRET": "from-env"}),
	)
	require.NoError(t, err)

	assert.Equal(t, ":6000", c.HTTPAddr, "flag beats file")
	assert.Equal(t, "from-env", c.JWTSecret, "env beats file")
	assert.Equal(t, 10*time.Minute, c.AccessTTL, "file beats default")
	assert.Equal(t, DriverPostgres, c.StoreDriver)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":   {"JWT_SECRET": "x", "STORE_DRIVER": "mongo"},
		"postgres": {"JWT_SECRET": "x", "STORE_DRIVER": "postgres"},
		"duration": {"JWT_SECRET": "x", "JWT_ACCESS_EXPIRY": "soon"},
		"bool":     {"JWT_SECRET": "x", "COOKIE_SECURE": "maybe"},
		"prefix":   {"JWT_SECRET": "x", "API_PREFIX": "api"},
		"interval": {"JWT_SECRET": "x", "METRICS_LOG_INTERVAL": "-1s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(nil, envMap(env))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{"--config=/does/not/exist.json"}, envMap(map[string]string{"JWT_SECRET": "x"}))
	require.Error(t, err)
}

func TestAuthConfig(t *testing.T) {
	c := Defaults()
	c.JWTSecret = "0123456789abcdef0123456789abcdef"
	c.RefreshRotation = true
	c.CookieSecure = false

	ac := c.Auth()
	assert.Equal(t, []byte(c.JWTSecret), ac.JWT.PrivateKey)
	assert.Equal(t, 15*time.Minute, ac.JWT.AccessTTL)
	assert.True(t, ac.Session.RotateRefreshToken)
	assert.False(t, ac.Session.CookieSecure)
	require.NoError(t, ac.Validate())
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"60":  time.Minute,
		"15m": 15 * time.Minute,
		"2d":  48 * time.Hour,
		"1h":  time.Hour,
	}
	for in, want := range cases {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
