package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/go-sql-driver/mysql"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending up migrations for the driver. It opens
// its own connection so the main pool is never left in a migrated-but-dirty
// state.
func RunMigrations(driver, dsn string) error {
	m, closeDB, err := newMigrator(driver, dsn)
	if err != nil {
		return err
	}
	defer closeDB()
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(driver, dsn string, steps int) error {
	m, closeDB, err := newMigrator(driver, dsn)
	if err != nil {
		return err
	}
	defer closeDB()
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

func newMigrator(driver, dsn string) (*migrate.Migrate, func(), error) {
	if driver == "" {
		driver = DriverSQLite
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration database: %w", err)
	}
	closeDB := func() { _ = sqlDB.Close() }

	var (
		dbDriver interface{ Close() error }
		m        *migrate.Migrate
	)
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("create iofs source: %w", err)
	}

	switch driver {
	case DriverSQLite:
		d, derr := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
		if derr != nil {
			closeDB()
			return nil, nil, fmt.Errorf("create sqlite migration driver: %w", derr)
		}
		dbDriver = d
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", d)
	case DriverMySQL:
		d, derr := migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
		if derr != nil {
			closeDB()
			return nil, nil, fmt.Errorf("create mysql migration driver: %w", derr)
		}
		dbDriver = d
		m, err = migrate.NewWithInstance("iofs", src, "mysql", d)
	default:
		closeDB()
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		_ = dbDriver.Close()
		closeDB()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, closeDB, nil
}
