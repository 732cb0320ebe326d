package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return sqlx.NewDb(mockDB, driverName), mock
}

func Test_ping(t *testing.T) {
	errRefused := errors.New("connection refused")

	t.Run("ready after retries", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(errRefused)
		mock.ExpectPing()

		assert.NoError(t, ping(context.Background(), db, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("timeout", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(errRefused)
		mock.ExpectPing().WillReturnError(errRefused)

		err := ping(context.Background(), db, 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB ping timeout")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancelled", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectPing().WillReturnError(errRefused)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := ping(ctx, db, 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB ping cancelled")
	})
}

func TestOpen_invalidURL(t *testing.T) {
	conf := &core.Config{Database: core.DatabaseConfig{URL: "postgres://%zz", PingAttempts: 1}}
	_, err := Open(context.Background(), conf)
	assert.Error(t, err)
}
