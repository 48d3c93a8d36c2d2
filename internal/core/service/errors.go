package service

import (
	"errors"
	"fmt"

	"github.com/rl1809/correlator/internal/core/domain"
)

var (
	ErrEmptyBatch = errors.New("empty batch")

	// ErrTransientIO marks buffer store failures. The triggering message
	// should be redelivered, buffered state was left untouched.
	ErrTransientIO = errors.New("transient io error")

	// ErrDelivery is matched by errors returned from the analytics sink.
	ErrDelivery = errors.New("delivery failed")
)

// PartialDelivery is implemented by delivery errors that know how many
// leading records of the batch the sink accepted before failing.
type PartialDelivery interface {
	error
	AcceptedCount() int
}

func acceptedCount(err error, total int) int {
	var pd PartialDelivery
	if !errors.As(err, &pd) {
		return 0
	}
	return min(max(pd.AcceptedCount(), 0), total)
}

// storeError marks buffer store failures as transient, except for corrupt
// snapshots, which a retry cannot fix.
func storeError(err error) error {
	if errors.Is(err, domain.ErrCorruptSnapshot) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientIO, err)
}
