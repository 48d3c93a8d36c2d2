package port

import (
	"context"

	"github.com/rl1809/correlator/internal/core/domain"
)

type AnalyticsSink interface {
	// SendBatch delivers merged records and returns the generated batch number
	SendBatch(ctx context.Context, records []domain.MergedRecord) (string, error)
}
