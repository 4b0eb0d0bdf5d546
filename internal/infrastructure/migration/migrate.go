package migration

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrator drives schema migrations over golang-migrate. The ledger schema
// only ever moves forward in production; Down and Drop exist for local
// development.
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// New wraps an open database handle in a Migrator reading SQL files from
// migrationsPath.
func New(db *sql.DB, migrationsPath string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{migrate: m, logger: logger}, nil
}

// run executes op, treating ErrNoChange as success, and logs the resulting
// version.
func (m *Migrator) run(what string, op func() error) error {
	m.logger.Info("Running migration", zap.String("op", what))

	err := op()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply", zap.String("op", what))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", what, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.logger.Info("Migration completed",
		zap.String("op", what),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	return m.run("up", m.migrate.Up)
}

// Down rolls back all applied migrations.
func (m *Migrator) Down() error {
	return m.run("down", m.migrate.Down)
}

// Steps applies n migrations; negative n rolls back.
func (m *Migrator) Steps(n int) error {
	return m.run(fmt.Sprintf("step %d", n), func() error { return m.migrate.Steps(n) })
}

// GoTo migrates up or down to exactly the given version.
func (m *Migrator) GoTo(version uint) error {
	return m.run(fmt.Sprintf("goto %d", version), func() error { return m.migrate.Migrate(version) })
}

// Version returns the current schema version. A database with no applied
// migrations reports version 0, not an error.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Force stamps the schema version without running migrations. Only for
// repairing a dirty state after a failed migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing migration version", zap.Int("version", version))

	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	m.logger.Info("Migration version forced", zap.Int("version", version))
	return nil
}

// Drop destroys every object in the database, ledger included.
func (m *Migrator) Drop() error {
	m.logger.Warn("Dropping database - all data will be lost")

	if err := m.migrate.Drop(); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	m.logger.Info("Database dropped")
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close database: %w", dbErr)
	}
	return nil
}
