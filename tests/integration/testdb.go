// Package integration wires the ledger stack against a real PostgreSQL
// instance started through testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB owns a throwaway PostgreSQL container with the full migration set
// applied. Each call to NewTestDB gets its own container, so tests never
// share ledger state.
type TestDB struct {
	DB *gorm.DB

	t         *testing.T
	sqlDB     *sql.DB
	container testcontainers.Container
}

func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("retailcore_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "read container connection string")

	logMode := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		logMode = logger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	require.NoError(t, err, "open gorm connection")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	applyMigrations(t, sqlDB)

	tdb := &TestDB{DB: db, t: t, sqlDB: sqlDB, container: container}
	t.Cleanup(tdb.close)
	return tdb
}

func (tdb *TestDB) close() {
	if tdb.sqlDB != nil {
		_ = tdb.sqlDB.Close()
	}
	if tdb.container != nil {
		if err := tdb.container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("terminate container: %v", err)
		}
	}
}

// CreateTestProduct inserts a catalog product row the calculation engine can
// price against. Price is VAT inclusive.
func (tdb *TestDB) CreateTestProduct(tenantID, productID fmt.Stringer, price, costPrice string, serialized bool) {
	tdb.t.Helper()

	sku := fmt.Sprintf("SKU-%s", productID.String()[:8])
	name := fmt.Sprintf("Test Product %s", productID.String()[:8])

	err := tdb.DB.Exec(`
		INSERT INTO products (id, tenant_id, sku, name, price, cost_price, tax_rate, serialized, sellable)
		VALUES (?, ?, ?, ?, ?, ?, 0.15, ?, TRUE)
		ON CONFLICT (id) DO NOTHING
	`, productID.String(), tenantID.String(), sku, name, price, costPrice, serialized).Error
	require.NoError(tdb.t, err, "insert test product")
}

func applyMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	path := migrationsDir()
	require.NotEmpty(t, path, "migrations directory not found")

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	require.NoError(t, err)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("apply migrations: %v", err)
	}
}

// migrationsDir walks up from this file until it finds the migrations
// directory at the repository root.
func migrationsDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}

	dir := filepath.Dir(filename)
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	return ""
}
