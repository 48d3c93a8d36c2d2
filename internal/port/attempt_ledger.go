package port

import (
	"context"

	"github.com/rl1809/correlator/internal/core/domain"
)

type AttemptLedger interface {
	// RecordAttempt stores the outcome of one correlation attempt
	RecordAttempt(ctx context.Context, attempt domain.Attempt) error

	// ListAttempts returns the most recent attempts, newest first
	ListAttempts(ctx context.Context, limit int) ([]domain.Attempt, error)
}
