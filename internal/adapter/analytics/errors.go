package analytics

import (
	"errors"
	"fmt"

	"github.com/rl1809/correlator/internal/core/service"
)

// ErrUnauthorized is returned when the sink rejects a bearer token.
var ErrUnauthorized = errors.New("analytics sink rejected token")

// AuthError reports a failed token fetch.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("analytics auth: token endpoint returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("analytics auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == service.ErrDelivery }

// DeliveryError reports a batch the sink did not accept. In single mode
// Accepted counts the leading records delivered before the failure.
type DeliveryError struct {
	BatchNumber string
	StatusCode  int
	Attempts    int
	Accepted    int
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("analytics delivery of batch %s failed after %d attempt(s): %v", e.BatchNumber, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) AcceptedCount() int { return e.Accepted }

func (e *DeliveryError) Is(target error) bool { return target == service.ErrDelivery }

// statusError wraps a non-2xx response with a retryable flag.
type statusError struct {
	code      int
	retryable bool
}

func (e *statusError) Error() string { return fmt.Sprintf("sink returned HTTP %d", e.code) }

func (e *statusError) Is(target error) bool {
	return target == ErrUnauthorized && e.code == 401
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.retryable
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.StatusCode == 0 || ae.StatusCode >= 500
	}
	// Transport failures (connection refused, timeouts) are retryable.
	return true
}
