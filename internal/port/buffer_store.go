package port

import (
	"context"
	"time"

	"github.com/rl1809/correlator/internal/core/domain"
)

type BufferStore interface {
	// PutCustomers replaces the customer snapshot and refreshes its expiry
	PutCustomers(ctx context.Context, snapshot domain.CustomerSnapshot, ttl time.Duration) error

	// PutProducts replaces the product snapshot and refreshes its expiry
	PutProducts(ctx context.Context, snapshot domain.ProductSnapshot, ttl time.Duration) error

	// GetBoth reads both sides without changing them, absent sides are nil
	GetBoth(ctx context.Context) (domain.Pending, error)

	// TakeBoth atomically reads and deletes both sides, only when both are present.
	// Returns false and leaves the store untouched otherwise.
	TakeBoth(ctx context.Context) (domain.Pending, bool, error)

	// ClearBoth deletes both sides unconditionally
	ClearBoth(ctx context.Context) error

	// RestoreCustomers writes the snapshot only if the side is absent
	RestoreCustomers(ctx context.Context, snapshot domain.CustomerSnapshot, ttl time.Duration) (bool, error)

	// RestoreProducts writes the snapshot only if the side is absent
	RestoreProducts(ctx context.Context, snapshot domain.ProductSnapshot, ttl time.Duration) (bool, error)
}
