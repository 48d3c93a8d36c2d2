package storage

import (
	"context"
	"database/sql"
	"fmt"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/correlator/internal/core/domain"
)

const (
	defaultAttemptLimit = 50
	maxErrorMessageLen  = 1024
)

const createAttemptsTable = `
CREATE TABLE IF NOT EXISTS correlation_attempts (
	id             BIGINT AUTO_INCREMENT PRIMARY KEY,
	batch_number   VARCHAR(16)  NOT NULL DEFAULT '',
	customer_count INT          NOT NULL,
	product_count  INT          NOT NULL,
	merged_count   INT          NOT NULL,
	outcome        VARCHAR(32)  NOT NULL,
	error_message  VARCHAR(1024) NOT NULL DEFAULT '',
	created_at     DATETIME(3)  NOT NULL,
	INDEX idx_created_at (created_at)
)`

// MySQLAdapter keeps an audit ledger of correlation attempts. Only counts
// and outcomes are stored, never the merged records themselves.
type MySQLAdapter struct {
	db *sql.DB
}

// NormalizeDSN turns on parseTime, which scanning created_at into
// time.Time depends on.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createAttemptsTable); err != nil {
		return fmt.Errorf("create correlation_attempts: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO correlation_attempts
			(batch_number, customer_count, product_count, merged_count, outcome, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.BatchNumber, attempt.CustomerCount, attempt.ProductCount, attempt.MergedCount,
		string(attempt.Outcome), truncate(attempt.ErrorMessage, maxErrorMessageLen), attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	return nil
}

func (m *MySQLAdapter) ListAttempts(ctx context.Context, limit int) ([]domain.Attempt, error) {
	if limit <= 0 {
		limit = defaultAttemptLimit
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, batch_number, customer_count, product_count, merged_count, outcome, error_message, created_at
		FROM correlation_attempts
		ORDER BY id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.BatchNumber, &a.CustomerCount, &a.ProductCount,
			&a.MergedCount, &outcome, &a.ErrorMessage, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Outcome = domain.AttemptOutcome(outcome)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return attempts, nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// truncate keeps at most n characters; VARCHAR length counts characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
