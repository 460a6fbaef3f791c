package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// maxIdentityRetries keeps the doubling retry delay within time.Duration.
const maxIdentityRetries = 10

const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SessionConfig struct {
	Backend      string
	CookieName   string
	CookieSecret string
	CookieSecure bool
	// TTL bounds persisted sessions whose token carries no expiry.
	TTL         time.Duration
	SealKey     string
	IdleTimeout time.Duration
}

type IdentityConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type RoutesConfig struct {
	LoginPath        string
	UnauthorizedPath string
}

type JobsConfig struct {
	PurgeSchedule string
	EvictSchedule string
}

type AppConfig struct {
	Environment      string
	LogLevel         string
	HTTP             HTTPConfig
	Session          SessionConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Identity         IdentityConfig
	Routes           RoutesConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("SANTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	case SessionBackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn required for session backend %q", c.Session.Backend)
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	if c.Identity.BaseURL == "" {
		return fmt.Errorf("identity.baseurl required")
	}
	if c.Identity.MaxRetries < 0 || c.Identity.MaxRetries > maxIdentityRetries {
		return fmt.Errorf("identity.maxretries must be between 0 and %d", maxIdentityRetries)
	}
	if c.Identity.RetryDelay <= 0 || c.Identity.RetryDelay > time.Minute {
		return fmt.Errorf("identity.retrydelay must be positive and at most 1m")
	}
	if c.Environment == "production" && c.Session.CookieSecret == "" {
		return fmt.Errorf("session.cookiesecret required in production")
	}
	if !strings.HasPrefix(c.Routes.LoginPath, "/") || !strings.HasPrefix(c.Routes.UnauthorizedPath, "/") {
		return fmt.Errorf("routes must be absolute paths")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("session.backend", SessionBackendMemory)
	v.SetDefault("session.cookiename", "santrack_client")
	v.SetDefault("session.cookiesecret", "")
	v.SetDefault("session.cookiesecure", false)
	v.SetDefault("session.ttl", "168h")
	v.SetDefault("session.sealkey", "")
	v.SetDefault("session.idletimeout", "30m")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("identity.baseurl", "http://localhost:5000/api/v1")
	v.SetDefault("identity.timeout", "10s")
	v.SetDefault("identity.maxretries", 3)
	v.SetDefault("identity.retrydelay", "1s")

	v.SetDefault("routes.loginpath", "/login")
	v.SetDefault("routes.unauthorizedpath", "/unauthorized")

	v.SetDefault("jobs.purgeschedule", "0 0 * * * *") // hourly
	v.SetDefault("jobs.evictschedule", "0 */5 * * * *")

	v.SetDefault("allowcorsorigins", []string{})
}
