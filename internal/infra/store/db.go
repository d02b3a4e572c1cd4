// Package store is the relational persistence layer (gorm over SQLite or
// MySQL). Every query is scoped by owner id.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/vantage-api/internal/domain"
	"github.com/boddenberg/vantage-api/internal/infra/resilience"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("store")

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Options configures the database connection.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
	Tracing         bool
}

// Store implements the persistence ports on top of gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured database, retrying the initial ping.
func Open(ctx context.Context, opts Options, retry resilience.Config, logger *zap.Logger) (*Store, error) {
	dialector, sqlDB, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}

	slow := opts.SlowThreshold
	if slow == 0 {
		slow = 200 * time.Millisecond
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc:                func() time.Time { return time.Now().UTC() },
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	if sqlDB == nil {
		if sqlDB, err = db.DB(); err != nil {
			return nil, fmt.Errorf("get sql.DB: %w", err)
		}
	}
	configurePool(sqlDB, opts)

	if err := resilience.RetryWithBackoff(ctx, retry, func() error {
		return sqlDB.PingContext(ctx)
	}); err != nil {
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	if opts.Tracing {
		if err := db.Use(otelgorm.NewPlugin()); err != nil {
			logger.Warn("failed to install otelgorm plugin", zap.Error(err))
		}
	}

	logger.Info("database connected", zap.String("driver", opts.Driver))
	return &Store{db: db, logger: logger}, nil
}

func dialectorFor(opts Options) (gorm.Dialector, *sql.DB, error) {
	switch opts.Driver {
	case DriverMySQL:
		return gormmysql.Open(opts.DSN), nil, nil
	case DriverSQLite, "":
		// modernc registers itself as "sqlite"; the gorm dialector only
		// needs an open pool.
		sqlDB, err := sql.Open("sqlite", opts.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &gormsqlite.Dialector{DriverName: "sqlite", DSN: opts.DSN, Conn: sqlDB}, sqlDB, nil
	}
	return nil, nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
}

func configurePool(sqlDB *sql.DB, opts Options) {
	if opts.Driver == DriverSQLite || opts.Driver == "" {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
}

// Ping implements port.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================
// helpers
// ============================================================

func newID() string {
	return uuid.NewString()
}

// notFound converts gorm's sentinel into the domain error.
func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return err
}

func offset(page, pageSize int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * pageSize
}
