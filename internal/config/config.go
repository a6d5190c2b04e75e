// Package config loads vitaauth-server settings in layers: defaults, an
// optional JSON file, environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vitadrop/vitaauth"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory      = "memory"
	DriverRedis       = "redis"
	DriverPostgres    = "postgres"
	DriverMemoryRedis = "memory-redis"
)

// Config holds runtime settings of the server binary.
type Config struct {
	HTTPAddr        string
	APIPrefix       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	StoreDriver   string
	RedisAddr     string
	DatabaseURL   string
	SweepInterval time.Duration

	JWTSecret       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RefreshRotation bool

	CORSOrigins  []string
	CookieSecure bool

	LogFormat string
	LogLevel  string

	MetricsEnabled bool
	// MetricsLogInterval is how often the OTel meter provider collects and
	// logs the engine counters. Zero turns the OTel bridge off.
	MetricsLogInterval time.Duration
	AuditEnabled       bool
}

// Defaults returns development defaults. JWTSecret is left empty on purpose
// and must come from a later layer.
func Defaults() Config {
	return Config{
		HTTPAddr:           ":4000",
		APIPrefix:          "/api/users",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		StoreDriver:        DriverMemory,
		RedisAddr:          "127.0.0.1:6379",
		SweepInterval:      time.Minute,
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		CORSOrigins:        []string{"http://localhost:3000"},
		CookieSecure:       true,
		LogFormat:          "text",
		LogLevel:           "info",
		MetricsEnabled:     true,
		MetricsLogInterval: time.Minute,
	}
}

// Load applies every layer. getenv is usually os.Getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	path := configPath(args)
	if path == "" {
		path = getenv("VITAAUTH_CONFIG")
	}
	if path != "" {
		if err := applyJSONFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return nil, err
	}
	if err := applyFlags(&cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks what the engine does not: the driver, the secret, and the
// prefix shape.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case DriverMemory, DriverMemoryRedis:
	case DriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("API_PREFIX %q must start with /", c.APIPrefix))
	}
	if c.MetricsLogInterval < 0 {
		errs = append(errs, errors.New("metrics log interval must be >= 0"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be > 0"))
	}
	return errors.Join(errs...)
}

// Auth derives the engine configuration.
func (c *Config) Auth() vitaauth.Config {
	ac := vitaauth.DefaultConfig()
	ac.JWT.PrivateKey = []byte(c.JWTSecret)
	ac.JWT.AccessTTL = c.AccessTTL
	ac.JWT.RefreshTTL = c.RefreshTTL
	ac.Session.RotateRefreshToken = c.RefreshRotation
	ac.Session.CookieSecure = c.CookieSecure
	ac.Metrics.Enabled = c.MetricsEnabled
	ac.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	ac.Audit.Enabled = c.AuditEnabled
	return ac
}
