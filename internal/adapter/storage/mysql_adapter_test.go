package storage

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/correlator/internal/core/domain"
)

func TestRecordAttempt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewMySQLAdapter(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO correlation_attempts")).
		WithArgs("AB12CD34", 2, 3, 1, "delivered", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = adapter.RecordAttempt(context.Background(), domain.Attempt{
		BatchNumber:   "AB12CD34",
		CustomerCount: 2,
		ProductCount:  3,
		MergedCount:   1,
		Outcome:       domain.AttemptOutcomeDelivered,
		CreatedAt:     now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAttempt_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO correlation_attempts")).
		WillReturnError(errors.New("connection refused"))

	err = NewMySQLAdapter(db).RecordAttempt(context.Background(), domain.Attempt{Outcome: domain.AttemptOutcomeNoMatch})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert attempt")
}

func TestListAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "batch_number", "customer_count", "product_count", "merged_count", "outcome", "error_message", "created_at",
	}).
		AddRow(int64(2), "", 1, 1, 0, "no_match", "", now).
		AddRow(int64(1), "FFEE0011", 1, 2, 1, "delivery_failed", "sink returned HTTP 503", now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM correlation_attempts")).
		WithArgs(10).
		WillReturnRows(rows)

	attempts, err := NewMySQLAdapter(db).ListAttempts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, domain.AttemptOutcomeNoMatch, attempts[0].Outcome)
	assert.Equal(t, "FFEE0011", attempts[1].BatchNumber)
	assert.Equal(t, "sink returned HTTP 503", attempts[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAttempts_DefaultLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM correlation_attempts")).
		WithArgs(defaultAttemptLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	attempts, err := NewMySQLAdapter(db).ListAttempts(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS correlation_attempts")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewMySQLAdapter(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeDSN_EnablesParseTime(t *testing.T) {
	dsn, err := NormalizeDSN("root:root@tcp(mysql:3306)/correlator")
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "correlator", cfg.DBName)
	assert.Equal(t, "mysql:3306", cfg.Addr)

	_, err = NormalizeDSN("not a dsn")
	assert.Error(t, err)
}

func TestRecordAttempt_TruncatesByCharacter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	long := strings.Repeat("é", maxErrorMessageLen+10)
	want := strings.Repeat("é", maxErrorMessageLen)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO correlation_attempts")).
		WithArgs("", 0, 0, 0, "delivery_failed", want, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewMySQLAdapter(db).RecordAttempt(context.Background(), domain.Attempt{
		Outcome:      domain.AttemptOutcomeDeliveryFailed,
		ErrorMessage: long,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, utf8.ValidString(truncate(long, maxErrorMessageLen)))
}
