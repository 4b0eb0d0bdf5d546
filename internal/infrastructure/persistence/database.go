package persistence

import (
	"fmt"
	"time"

	"github.com/retailcore/backend/internal/infrastructure/config"
	applogger "github.com/retailcore/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database wraps the GORM connection shared by all repositories.
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens a connection with SQL logging disabled. Tools that only
// need a handle (health probes, one-off scripts) use this form.
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return open(cfg, applogger.NewGormLogger(zap.NewNop(), gormlogger.Silent))
}

// NewDatabaseWithLogger opens a connection whose SQL statements log through
// the application's zap logger at the given GORM level.
func NewDatabaseWithLogger(cfg *config.DatabaseConfig, log *zap.Logger, level gormlogger.LogLevel) (*Database, error) {
	return open(cfg, applogger.NewGormLogger(log, level))
}

func open(cfg *config.DatabaseConfig, gl gormlogger.Interface) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gl,
		// Movement appends and status transitions manage their own
		// transactions; the implicit per-write transaction only adds
		// round trips.
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping reports whether the connection is alive.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// ConnectionStats holds connection pool statistics for the readiness probe.
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	MaxIdleTimeClosed  int64
	MaxLifetimeClosed  int64
}

// Stats returns current pool statistics.
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}, nil
}

// Transaction runs fn inside a database transaction.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}

// WithTenant returns a DB handle scoped to one tenant. An empty tenant ID is
// a programming error, not a request error, so it panics rather than
// silently querying across tenants.
func (d *Database) WithTenant(tenantID string) *gorm.DB {
	if tenantID == "" {
		panic("WithTenant called with empty tenant ID")
	}
	return d.DB.Where("tenant_id = ?", tenantID)
}
