package vitaauth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vitadrop/vitaauth/internal/audit"
	"github.com/vitadrop/vitaauth/internal/rate"
	"github.com/vitadrop/vitaauth/jwt"
	"github.com/vitadrop/vitaauth/password"
	"github.com/vitadrop/vitaauth/tokenstore"
)

// Builder assembles an [Engine]. A builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	tokenStore   tokenstore.Store
	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables login and refresh throttling. When no token store is
// set, refresh records are also kept in this Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenStore sets the refresh record store.
func (b *Builder) WithTokenStore(store tokenstore.Store) *Builder {
	b.tokenStore = store
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for non-fatal warnings. slog.Default is used
// otherwise.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the clock used to sign and verify tokens.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.JWT.SigningMethod = strings.ToLower(cfg.JWT.SigningMethod)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	store := b.tokenStore
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("token store or redis client required")
		}
		store = tokenstore.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		tokenStore:   store,
		userProvider: b.userProvider,
		logger:       logger,
		now:          now,
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Warn:       engine.warn,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	hasher, err := buildHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.passwordHash = hasher

	jm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// Pays one hash on unknown-email logins so they take as long as a
	// wrong password.
	dummy, err := hasher.Hash("vitaauth-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	engine.dummyHash = dummy

	engine.flows = engine.buildFlows()

	b.built = true

	return engine, nil
}

func buildHasher(cfg PasswordConfig) (*password.Multi, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	a2, err := password.NewArgon2(password.Argon2Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Scheme == "argon2id" {
		return password.NewMulti(a2, bc), nil
	}
	return password.NewMulti(bc, a2), nil
}
