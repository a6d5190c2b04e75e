package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Duration accepts "15m" style strings or integer seconds in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs int64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration: %s", b)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

type fileConfig struct {
	HTTPAddr           *string   `json:"http_addr"`
	APIPrefix          *string   `json:"api_prefix"`
	ReadTimeout        *Duration `json:"read_timeout"`
	WriteTimeout       *Duration `json:"write_timeout"`
	ShutdownTimeout    *Duration `json:"shutdown_timeout"`
	StoreDriver        *string   `json:"store_driver"`
	RedisAddr          *string   `json:"redis_addr"`
	DatabaseURL        *string   `json:"database_url"`
	SweepInterval      *Duration `json:"sweep_interval"`
	JWTSecret          *string   `json:"jwt_secret"`
	AccessTTL          *Duration `json:"jwt_access_expiry"`
	RefreshTTL         *Duration `json:"jwt_refresh_expiry"`
	RefreshRotation    *bool     `json:"refresh_rotation"`
	CORSOrigins        []string  `json:"cors_origins"`
	CookieSecure       *bool     `json:"cookie_secure"`
	LogFormat          *string   `json:"log_format"`
	LogLevel           *string   `json:"log_level"`
	MetricsEnabled     *bool     `json:"metrics_enabled"`
	MetricsLogInterval *Duration `json:"metrics_log_interval"`
	AuditEnabled       *bool     `json:"audit_enabled"`
}

func applyJSONFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.APIPrefix, fc.APIPrefix)
	setDuration(&cfg.ReadTimeout, fc.ReadTimeout)
	setDuration(&cfg.WriteTimeout, fc.WriteTimeout)
	setDuration(&cfg.ShutdownTimeout, fc.ShutdownTimeout)
	setString(&cfg.StoreDriver, fc.StoreDriver)
	setString(&cfg.RedisAddr, fc.RedisAddr)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setDuration(&cfg.SweepInterval, fc.SweepInterval)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setDuration(&cfg.AccessTTL, fc.AccessTTL)
	setDuration(&cfg.RefreshTTL, fc.RefreshTTL)
	setBool(&cfg.RefreshRotation, fc.RefreshRotation)
	if fc.CORSOrigins != nil {
		cfg.CORSOrigins = fc.CORSOrigins
	}
	setBool(&cfg.CookieSecure, fc.CookieSecure)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.LogLevel, fc.LogLevel)
	setBool(&cfg.MetricsEnabled, fc.MetricsEnabled)
	setDuration(&cfg.MetricsLogInterval, fc.MetricsLogInterval)
	setBool(&cfg.AuditEnabled, fc.AuditEnabled)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := map[string]*string{
		"HTTP_ADDR":    &cfg.HTTPAddr,
		"API_PREFIX":   &cfg.APIPrefix,
		"STORE_DRIVER": &cfg.StoreDriver,
		"REDIS_ADDR":   &cfg.RedisAddr,
		"DATABASE_URL": &cfg.DatabaseURL,
		"JWT_SECRET":   &cfg.JWTSecret,
		"LOG_FORMAT":   &cfg.LogFormat,
		"LOG_LEVEL":    &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"JWT_ACCESS_EXPIRY":    &cfg.AccessTTL,
		"JWT_REFRESH_EXPIRY":   &cfg.RefreshTTL,
		"SWEEP_INTERVAL":       &cfg.SweepInterval,
		"METRICS_LOG_INTERVAL": &cfg.MetricsLogInterval,
	}
	for key, dst := range durations {
		v := getenv(key)
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	bools := map[string]*bool{
		"COOKIE_SECURE":    &cfg.CookieSecure,
		"REFRESH_ROTATION": &cfg.RefreshRotation,
		"METRICS_ENABLED":  &cfg.MetricsEnabled,
		"AUDIT_ENABLED":    &cfg.AuditEnabled,
	}
	for key, dst := range bools {
		v := getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}

	if v := getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	return nil
}

func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("vitaauth-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.String("config", "", "path to a JSON config file")
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.APIPrefix, "prefix", cfg.APIPrefix, "route prefix of the user API")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: memory, redis, postgres, memory-redis")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.DatabaseURL, "db", cfg.DatabaseURL, "postgres DSN")
	fs.DurationVar(&cfg.AccessTTL, "access-ttl", cfg.AccessTTL, "access token lifetime")
	fs.DurationVar(&cfg.RefreshTTL, "refresh-ttl", cfg.RefreshTTL, "refresh token lifetime")
	fs.BoolVar(&cfg.RefreshRotation, "rotate", cfg.RefreshRotation, "rotate the refresh token on every refresh")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	return nil
}

// configPath finds -config or --config without parsing the other flags yet.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// parseDuration accepts Go duration strings, plus bare integers as seconds
// and a "d" suffix for days.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
