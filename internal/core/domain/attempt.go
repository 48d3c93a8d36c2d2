package domain

import "time"

type AttemptOutcome string

const (
	AttemptOutcomeDelivered      AttemptOutcome = "delivered"
	AttemptOutcomeNoMatch        AttemptOutcome = "no_match"
	AttemptOutcomeDeliveryFailed AttemptOutcome = "delivery_failed"
	AttemptOutcomeRetained       AttemptOutcome = "retained"
)

type Attempt struct {
	ID            int64
	BatchNumber   string
	CustomerCount int
	ProductCount  int
	MergedCount   int
	Outcome       AttemptOutcome
	ErrorMessage  string
	CreatedAt     time.Time
}
