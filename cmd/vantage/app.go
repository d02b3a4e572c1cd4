package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/cache"
	"github.com/boddenberg/vantage-api/internal/infra/events"
	"github.com/boddenberg/vantage-api/internal/infra/lock"
	"github.com/boddenberg/vantage-api/internal/infra/mailer"
	"github.com/boddenberg/vantage-api/internal/infra/observability"
	"github.com/boddenberg/vantage-api/internal/infra/resilience"
	"github.com/boddenberg/vantage-api/internal/infra/store"
	"github.com/boddenberg/vantage-api/internal/port"
	"github.com/boddenberg/vantage-api/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	serviceName     = "vantage-api"
	lockRetryEvery  = 100 * time.Millisecond
	lockRetries     = 50
	shutdownTimeout = 15 * time.Second
)

// app holds the wired dependencies shared by serve and worker.
type app struct {
	metrics *observability.Metrics
	store   *store.Store

	auth         *service.AuthService
	transactions *service.TransactionService
	budgets      *service.BudgetService
	recurring    *service.RecurringService
	savings      *service.SavingsService

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{metrics: observability.NewMetrics()}

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	})

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Database ---
	if cfg.AutoMigrate {
		if err := store.RunMigrations(cfg.DBDriver, cfg.DatabaseURL); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("database migrations applied", zap.String("driver", cfg.DBDriver))
	}
	st, err := store.Open(ctx, store.Options{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		Tracing:         cfg.OTLPEndpoint != "",
	}, resilienceCfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st
	a.onClose(func() { _ = st.Close() })

	// --- Coordination ---
	var locker port.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.onClose(func() { _ = rdb.Close() })
		locker = lock.NewRedis(rdb, lockRetryEvery, lockRetries)
		logger.Info("using redis locks")
	} else {
		locker = lock.NewLocalWithWait(lockRetryEvery * lockRetries)
		logger.Warn("REDIS_URL not set, using in-process locks (single instance only)")
	}

	// --- Events ---
	var publisher port.EventPublisher = events.Noop{}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.HTTPTimeout, logger)
		if err != nil {
			logger.Warn("failed to connect to AMQP, events disabled", zap.Error(err))
		} else {
			publisher = amqpPub
			a.onClose(func() { _ = amqpPub.Close() })
			logger.Info("publishing events", zap.String("exchange", cfg.AMQPExchange))
		}
	}

	// --- Mail ---
	var notifier port.Notifier = mailer.LogNotifier{Logger: logger}
	if cfg.MailAPIURL != "" {
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		cb := resilience.NewCircuitBreaker("mail-api", logger)
		notifier = mailer.NewHTTPNotifier(httpClient, cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom, cb, resilienceCfg, a.metrics)
	} else {
		logger.Warn("MAIL_API_URL not set, password reset links are only logged")
	}

	// --- Services ---
	now := service.Clock(time.Now)
	summaryCache := cache.New[*domain.TransactionSummary](cfg.CacheTTL)
	a.onClose(summaryCache.Close)

	a.auth = service.NewAuthService(st, notifier, service.AuthConfig{
		JWTSecret:        cfg.JWTSecret,
		AccessTTL:        cfg.JWTAccessTTL,
		RefreshTTL:       cfg.JWTRefreshTTL,
		PasswordResetTTL: cfg.PasswordResetTTL,
		FrontendURL:      cfg.FrontendURL,
	}, logger)
	a.budgets = service.NewBudgetService(st, st, locker, cfg.AlertDedupWindow, publisher, a.metrics, logger, now)
	a.transactions = service.NewTransactionService(st, a.budgets, summaryCache,
		resilience.NewBulkhead(cfg.MaxConcurrency), publisher, a.metrics, logger, now)
	a.recurring = service.NewRecurringService(st, a.transactions, locker, publisher, a.metrics, logger, now)
	a.savings = service.NewSavingsService(st, locker, logger, now)

	return a, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.auth != nil {
		a.auth.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
