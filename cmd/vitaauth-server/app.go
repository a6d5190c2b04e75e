package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/vitadrop/vitaauth"
	"github.com/vitadrop/vitaauth/internal/config"
	"github.com/vitadrop/vitaauth/internal/httpapi"
	"github.com/vitadrop/vitaauth/internal/logging"
	"github.com/vitadrop/vitaauth/internal/migrations"
	otelexport "github.com/vitadrop/vitaauth/metrics/export/otel"
	"github.com/vitadrop/vitaauth/metrics/export/prometheus"
	"github.com/vitadrop/vitaauth/tokenstore"
	"github.com/vitadrop/vitaauth/userstore"
)

type app struct {
	cfg     *config.Config
	logger  *logging.SlogLogger
	engine  *vitaauth.Engine
	sweeper tokenstore.Sweeper
	otel    *otelexport.Exporter
	server  *http.Server

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, err := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	users, tokens, rdb, err := a.openStores(ctx)
	if err != nil {
		return err
	}

	b := vitaauth.New().
		WithConfig(cfg.Auth()).
		WithUserProvider(users).
		WithLogger(logger.Slog())
	if tokens != nil {
		b = b.WithTokenStore(tokens)
	}
	if rdb != nil {
		b = b.WithRedis(rdb)
	}
	if cfg.AuditEnabled {
		b = b.WithAuditSink(vitaauth.NewSlogSink(logger.Slog().With("component", "audit")))
	}
	a.engine, err = b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	a.closers = append(a.closers, func() error { a.engine.Close(); return nil })

	var metrics http.Handler
	if cfg.MetricsEnabled {
		metrics = prometheus.NewExporter(a.engine).Handler()
	}
	if cfg.MetricsEnabled && cfg.MetricsLogInterval > 0 {
		mp := newMeterProvider(logger.Slog().With("component", "metrics"), cfg.MetricsLogInterval)
		otel.SetMeterProvider(mp)
		a.otel, err = otelexport.NewExporter(otel.Meter("github.com/vitadrop/vitaauth"), a.engine)
		if err != nil {
			_ = mp.Shutdown(ctx)
			return fmt.Errorf("otel exporter: %w", err)
		}
		// Closers run in reverse: the final collection happens before the
		// instruments are unregistered.
		a.closers = append(a.closers, a.otel.Close, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return mp.Shutdown(shutdownCtx)
		})
	}

	a.server = &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(a.engine, httpapi.Options{
			Prefix:         cfg.APIPrefix,
			AllowedOrigins: cfg.CORSOrigins,
			Logger:         logger.Slog(),
			Metrics:        metrics,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return nil
}

// openStores picks the user and refresh stores for the configured driver.
// The returned Redis client, when not nil, backs the rate limiter and, with
// a nil token store, the refresh records too.
func (a *app) openStores(ctx context.Context) (vitaauth.UserProvider, tokenstore.Store, redis.UniversalClient, error) {
	switch a.cfg.StoreDriver {
	case config.DriverMemory:
		tokens := tokenstore.NewMemoryStore()
		a.sweeper = tokens
		return userstore.NewMemoryStore(), tokens, nil, nil

	case config.DriverRedis, config.DriverMemoryRedis:
		addr := a.cfg.RedisAddr
		if a.cfg.StoreDriver == config.DriverMemoryRedis {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			a.closers = append(a.closers, func() error { mr.Close(); return nil })
			addr = mr.Addr()
		}
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
		}
		a.logger.Info(ctx, "redis connected", "addr", addr)
		// Redis expires records itself, so there is nothing to sweep.
		return userstore.NewMemoryStore(), nil, rdb, nil

	case config.DriverPostgres:
		db, err := migrations.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := migrations.Up(ctx, db); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		tokens := tokenstore.NewPostgresStore(db)
		a.sweeper = tokens
		return userstore.NewPostgresStore(db), tokens, nil, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info(ctx, "listening", "addr", a.cfg.HTTPAddr, "store", a.cfg.StoreDriver, "prefix", a.cfg.APIPrefix)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
		defer cancel()
		a.logger.Info(shutdownCtx, "shutting down")
		return a.server.Shutdown(shutdownCtx)
	})

	if a.sweeper != nil {
		g.Go(func() error {
			return tokenstore.RunSweeper(ctx, a.sweeper, a.cfg.SweepInterval, func(format string, args ...any) {
				a.logger.Warn(ctx, fmt.Sprintf(format, args...))
			})
		})
	}

	return g.Wait()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	a.closers = nil
}
