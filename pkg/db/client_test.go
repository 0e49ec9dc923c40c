package db

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type ledgerRow struct {
	ID   int
	Code string `gorm:"uniqueIndex"`
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTx(t *testing.T) {
	conn := openSQLite(t)
	client := Wrap(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Code: "committed"}).Error
	}))
	require.EqualValues(t, 1, countRows(t, conn))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Code: "rolled-back"}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, countRows(t, conn))

	require.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Code: "panicked"}).Error)
			panic("boom")
		})
	})
	require.EqualValues(t, 1, countRows(t, conn))
}

func TestPing(t *testing.T) {
	require.NoError(t, Wrap(openSQLite(t)).Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, conn.Create(&ledgerRow{Code: "dup"}).Error)
	require.True(t, IsUniqueViolation(conn.Create(&ledgerRow{Code: "dup"}).Error, ""))

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payout_idempotency_keys_shop_key_uniq"}
	require.True(t, IsUniqueViolation(pgErr, "payout_idempotency_keys_shop_key_uniq"))
	require.False(t, IsUniqueViolation(pgErr, "orders_code_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{DSN: "  "})
	require.ErrorIs(t, err, errDSNRequired)

	_, err = dialectorFor(config.DBConfig{DSN: "x", Driver: "MySQL"})
	require.EqualError(t, err, `unsupported database driver "mysql"`)

	d, err := dialectorFor(config.DBConfig{DSN: "file::memory:", Driver: " SQLite "})
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())

	d, err = dialectorFor(config.DBConfig{DSN: "postgres://localhost/orderflow"})
	require.NoError(t, err)
	require.Equal(t, "postgres", d.Name())
}

func TestQueryLogger(t *testing.T) {
	require.Equal(t, gormlogger.Discard, queryLogger(config.DBConfig{}, nil))

	logg := logger.New(logger.Options{ServiceName: "db-test", Output: io.Discard})
	require.Equal(t, gormlogger.Discard, queryLogger(config.DBConfig{}, logg))
	require.NotEqual(t, gormlogger.Discard, queryLogger(config.DBConfig{SlowQuery: time.Second}, logg))
}
