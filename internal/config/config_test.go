package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDecodeDefaults(t *testing.T) {
	cfg, err := decode(newViper())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, SessionBackendMemory, cfg.Session.Backend)
	assert.Equal(t, "santrack_client", cfg.Session.CookieName)
	assert.Equal(t, 168*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 3, cfg.Identity.MaxRetries)
	assert.Equal(t, time.Second, cfg.Identity.RetryDelay)
	assert.Equal(t, "/login", cfg.Routes.LoginPath)
	assert.Equal(t, "/unauthorized", cfg.Routes.UnauthorizedPath)
}

func TestDecodeFromYAML(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`
environment: staging
session:
  backend: redis
  cookiesecret: s3cret
  ttl: 2h
identity:
  baseurl: https://api.santrack.test/api/v1
  timeout: 3s
allowcorsorigins: "https://a.test,https://b.test"
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o600))

	v := newViper()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, v.ReadInConfig())

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, SessionBackendRedis, cfg.Session.Backend)
	assert.Equal(t, "s3cret", cfg.Session.CookieSecret)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 3*time.Second, cfg.Identity.Timeout)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowCORSOrigins)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(v *viper.Viper)
		errMsg string
	}{
		{
			name:   "unknown backend",
			mutate: func(v *viper.Viper) { v.Set("session.backend", "etcd") },
			errMsg: "unknown session backend",
		},
		{
			name:   "postgres without dsn",
			mutate: func(v *viper.Viper) { v.Set("session.backend", SessionBackendPostgres) },
			errMsg: "postgres.dsn required",
		},
		{
			name:   "production without cookie secret",
			mutate: func(v *viper.Viper) { v.Set("environment", "production") },
			errMsg: "cookiesecret required",
		},
		{
			name:   "relative login path",
			mutate: func(v *viper.Viper) { v.Set("routes.loginpath", "login") },
			errMsg: "absolute paths",
		},
		{
			name:   "too many retries",
			mutate: func(v *viper.Viper) { v.Set("identity.maxretries", 64) },
			errMsg: "identity.maxretries",
		},
		{
			name:   "negative retries",
			mutate: func(v *viper.Viper) { v.Set("identity.maxretries", -1) },
			errMsg: "identity.maxretries",
		},
		{
			name:   "zero retry delay",
			mutate: func(v *viper.Viper) { v.Set("identity.retrydelay", "0s") },
			errMsg: "identity.retrydelay",
		},
		{
			name:   "missing identity base url",
			mutate: func(v *viper.Viper) { v.Set("identity.baseurl", "") },
			errMsg: "identity.baseurl",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newViper()
			tc.mutate(v)
			_, err := decode(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}
