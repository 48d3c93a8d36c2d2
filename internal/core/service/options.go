package service

import (
	"fmt"
	"time"
)

const (
	DefaultTTL             = time.Hour
	DefaultMaxRedeliveries = 3
)

// UnmatchedPolicy decides what happens to customers and products that found
// no counterpart during an attempt.
type UnmatchedPolicy string

const (
	DropUnmatchedAfterAttempt UnmatchedPolicy = "drop"
	RebufferUnmatched         UnmatchedPolicy = "rebuffer"
)

// DeliveryFailurePolicy decides what happens to taken snapshots when the
// analytics sink rejects the batch.
type DeliveryFailurePolicy string

const (
	DropOnDeliveryFailure   DeliveryFailurePolicy = "drop"
	RetainOnDeliveryFailure DeliveryFailurePolicy = "retain"
)

type Options struct {
	TTL             time.Duration
	Unmatched       UnmatchedPolicy
	DeliveryFailure DeliveryFailurePolicy
	// MaxRedeliveries bounds how many failed delivery rounds retained data
	// may go through before it is dropped.
	MaxRedeliveries int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Unmatched == "" {
		o.Unmatched = DropUnmatchedAfterAttempt
	}
	if o.DeliveryFailure == "" {
		o.DeliveryFailure = DropOnDeliveryFailure
	}
	if o.MaxRedeliveries <= 0 {
		o.MaxRedeliveries = DefaultMaxRedeliveries
	}
	return o
}

func ParseUnmatchedPolicy(s string) (UnmatchedPolicy, error) {
	switch p := UnmatchedPolicy(s); p {
	case DropUnmatchedAfterAttempt, RebufferUnmatched:
		return p, nil
	case "":
		return DropUnmatchedAfterAttempt, nil
	}
	return "", fmt.Errorf("unknown unmatched policy %q", s)
}

func ParseDeliveryFailurePolicy(s string) (DeliveryFailurePolicy, error) {
	switch p := DeliveryFailurePolicy(s); p {
	case DropOnDeliveryFailure, RetainOnDeliveryFailure:
		return p, nil
	case "":
		return DropOnDeliveryFailure, nil
	}
	return "", fmt.Errorf("unknown delivery failure policy %q", s)
}
