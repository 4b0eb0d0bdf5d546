package persistence

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type movementRow struct {
	ID       uint
	TenantID string
	Quantity string
}

func (movementRow) TableName() string { return "stock_movements" }

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock
}

func TestWithTenant(t *testing.T) {
	t.Run("scopes queries to the tenant", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectQuery(`SELECT \* FROM "stock_movements" WHERE tenant_id = \$1`).
			WithArgs("tenant-a").
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "quantity"}).
				AddRow(1, "tenant-a", "5"))

		var rows []movementRow
		require.NoError(t, db.WithTenant("tenant-a").Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, "tenant-a", rows[0].TenantID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("chains with further conditions", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectQuery(`SELECT \* FROM "stock_movements" WHERE tenant_id = \$1 AND quantity = \$2`).
			WithArgs("tenant-a", "5").
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "quantity"}))

		var rows []movementRow
		require.NoError(t, db.WithTenant("tenant-a").Where("quantity = ?", "5").Find(&rows).Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("panics on empty tenant", func(t *testing.T) {
		db, _ := newMockDatabase(t)
		assert.Panics(t, func() { db.WithTenant("") })
	})
}

func TestDatabase_Transaction(t *testing.T) {
	t.Run("commits when fn succeeds", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "stock_movements"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "quantity"}).AddRow(1, "tenant-a", "5"))
		mock.ExpectCommit()

		err := db.Transaction(func(tx *gorm.DB) error {
			var rows []movementRow
			return tx.Find(&rows).Error
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when fn fails", func(t *testing.T) {
		db, mock := newMockDatabase(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		wantErr := errors.New("quantity would go negative")
		err := db.Transaction(func(tx *gorm.DB) error { return wantErr })
		assert.ErrorIs(t, err, wantErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDatabase_Ping(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	db := &Database{DB: gormDB}

	mock.ExpectPing()
	assert.NoError(t, db.Ping())

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, db.Ping())
}

func TestDatabase_Stats(t *testing.T) {
	db, _ := newMockDatabase(t)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Close(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
