package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockPool builds a Pool over a sqlmock connection. Automatic ping is
// off so every ping in a test is one the test expected.
func newMockPool(t *testing.T, cfg Config) (*Pool, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	pool, err := NewPool(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)
	return pool, mock
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	for _, driver := range []string{"", "oracle", "mssql"} {
		pool, err := Open(Config{Driver: driver}, zap.NewNop())
		require.Error(t, err)
		assert.Nil(t, pool)
		assert.Contains(t, err.Error(), "unsupported database driver")
	}
}

func TestNewPool(t *testing.T) {
	t.Run("applies pool limits", func(t *testing.T) {
		pool, _ := newMockPool(t, Config{MaxOpenConns: 7, MaxIdleConns: 3})
		defer pool.Close()

		assert.Equal(t, 7, pool.Stats().MaxOpenConnections)
		assert.NotNil(t, pool.DB())
	})

	t.Run("nil handle is rejected", func(t *testing.T) {
		pool, err := NewPool(nil, DefaultConfig(), zap.NewNop())
		require.Error(t, err)
		assert.Nil(t, pool)
	})
}

func TestPool_Ping(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectPing()
		assert.NoError(t, pool.Ping(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure surfaces", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectPing().WillReturnError(sql.ErrConnDone)
		assert.ErrorIs(t, pool.Ping(ctx), sql.ErrConnDone)
	})

	t.Run("closed pool refuses", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		mock.ExpectClose()
		require.NoError(t, pool.Close())

		assert.ErrorIs(t, pool.Ping(ctx), ErrClosed)
	})
}

func TestPool_WithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit on success", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		err := pool.WithTransaction(ctx, func(tx *gorm.DB) error { return nil })
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := pool.WithTransaction(ctx, func(tx *gorm.DB) error { return assert.AnError })
		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed pool refuses", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		mock.ExpectClose()
		require.NoError(t, pool.Close())

		err := pool.WithTransaction(ctx, func(tx *gorm.DB) error { return nil })
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestPool_WithTransactionRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failure retries until success", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
			calls++
			if calls == 1 {
				return errors.New("deadlock detected")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-retryable failure returns at once", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
			calls++
			return errors.New("syntax error at or near SELECT")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := pool.WithTransactionRetry(ctx, 2, func(tx *gorm.DB) error {
			calls++
			return errors.New("deadlock detected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 2 attempts")
		assert.Equal(t, 2, calls)
	})

	t.Run("expiring context interrupts the backoff", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		defer pool.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		err := pool.WithTransactionRetry(cctx, 3, func(tx *gorm.DB) error {
			return errors.New("deadlock detected")
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPool_Close(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{})
		mock.ExpectClose()

		require.NoError(t, pool.Close())
		assert.NoError(t, pool.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stops the ping loop", func(t *testing.T) {
		pool, mock := newMockPool(t, Config{PingInterval: 10 * time.Millisecond})
		mock.MatchExpectationsInOrder(false)
		mock.ExpectClose()

		time.Sleep(30 * time.Millisecond)
		require.NoError(t, pool.Close())
		time.Sleep(30 * time.Millisecond)
	})
}

func TestIsRetryableError(t *testing.T) {
	retryable := []string{
		"deadlock detected",
		"could not serialize access: serialization failure",
		"ERROR: SQLSTATE 40001",
		"read tcp: connection reset by peer",
		"dial tcp: connection refused",
		"write: broken pipe",
		"Lock wait timeout exceeded",
		"driver: bad connection",
	}
	for _, msg := range retryable {
		assert.True(t, isRetryableError(errors.New(msg)), msg)
	}

	permanent := []string{
		"syntax error at or near SELECT",
		"duplicate key value violates unique constraint",
	}
	for _, msg := range permanent {
		assert.False(t, isRetryableError(errors.New(msg)), msg)
	}
	assert.False(t, isRetryableError(nil))
}
