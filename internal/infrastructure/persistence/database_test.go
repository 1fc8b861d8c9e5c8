package persistence

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase opens a gorm handle over a sqlmock connection so the
// pool helpers can be exercised without postgres.
func newMockDatabase(t *testing.T, opts ...func() (*sql.DB, sqlmock.Sqlmock, error)) (*Database, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	open := func() (*sql.DB, sqlmock.Sqlmock, error) {
		return sqlmock.New()
	}
	if len(opts) > 0 {
		open = opts[0]
	}
	mockDB, mock, err := open()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestDatabase_Ping(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()

	assert.NoError(t, db.Ping())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_PingMonitored(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t, func() (*sql.DB, sqlmock.Sqlmock, error) {
		return sqlmock.New(sqlmock.MonitorPingsOption(true))
	})
	defer mockDB.Close()

	// gorm pings once on Open, then our Ping pings again
	mock.ExpectPing()
	mock.ExpectPing()

	assert.NoError(t, db.Ping())
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Stats(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	stats, err := db.Stats()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
	assert.GreaterOrEqual(t, stats.InUse, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
	assert.GreaterOrEqual(t, stats.WaitCount, int64(0))
	assert.GreaterOrEqual(t, stats.WaitDuration, time.Duration(0))
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Transaction(t *testing.T) {
	type voucher struct {
		ID   uint
		Code string
	}

	t.Run("commits on success", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		// Postgres inserts go through Query because of RETURNING
		mock.ExpectQuery(`INSERT INTO "vouchers"`).
			WithArgs("CN-202608-00001").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&voucher{Code: "CN-202608-00001"}).Error
		})

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.Transaction(func(tx *gorm.DB) error {
			return assert.AnError
		})

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
