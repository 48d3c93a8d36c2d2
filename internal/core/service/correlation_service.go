package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/core/domain"
	"github.com/rl1809/correlator/internal/port"
)

type AttemptResult struct {
	// Taken is false when one side was absent and nothing happened.
	Taken       bool
	Outcome     domain.AttemptOutcome
	Merged      int
	BatchNumber string
}

// CorrelationService buffers customer and product batches and merges them
// once both sides are present. Read-both and clear-both happen in a single
// TakeBoth call, so concurrent attempts never deliver the same data twice.
type CorrelationService struct {
	buffer    port.BufferStore
	sink      port.AnalyticsSink
	ledger    port.AttemptLedger
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
	mergeOpts []MergeOption
}

func NewCorrelationService(buffer port.BufferStore, sink port.AnalyticsSink, ledger port.AttemptLedger, opts Options, logger *zap.Logger) *CorrelationService {
	if ledger == nil {
		ledger = nopLedger{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrelationService{
		buffer: buffer,
		sink:   sink,
		ledger: ledger,
		opts:   opts.withDefaults(),
		logger: logger.Named("correlation"),
		now:    time.Now,
	}
}

// WithMergeOptions sets options applied to every Merge call.
func (s *CorrelationService) WithMergeOptions(opts ...MergeOption) *CorrelationService {
	s.mergeOpts = opts
	return s
}

func (s *CorrelationService) Options() Options {
	return s.opts
}

func (s *CorrelationService) AddCustomers(ctx context.Context, customers []domain.Customer) error {
	if len(customers) == 0 {
		return ErrEmptyBatch
	}

	s.logger.Info("buffering customers", zap.Int("customer_count", len(customers)))
	if err := s.buffer.PutCustomers(ctx, domain.CustomerSnapshot{Records: customers}, s.opts.TTL); err != nil {
		return fmt.Errorf("%w: buffer customers: %w", ErrTransientIO, err)
	}
	bufferedRecordsTotal.WithLabelValues(string(domain.SideCustomers)).Add(float64(len(customers)))

	_, err := s.Attempt(ctx)
	return err
}

func (s *CorrelationService) AddProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return ErrEmptyBatch
	}

	s.logger.Info("buffering products", zap.Int("product_count", len(products)))
	if err := s.buffer.PutProducts(ctx, domain.ProductSnapshot{Records: products}, s.opts.TTL); err != nil {
		return fmt.Errorf("%w: buffer products: %w", ErrTransientIO, err)
	}
	bufferedRecordsTotal.WithLabelValues(string(domain.SideProducts)).Add(float64(len(products)))

	_, err := s.Attempt(ctx)
	return err
}

// Attempt runs one correlation attempt. If either side is absent it returns
// without side effects. Delivery failures are handled by the configured
// policy and are not returned; only buffer store failures are.
func (s *CorrelationService) Attempt(ctx context.Context) (AttemptResult, error) {
	pending, ok, err := s.buffer.TakeBoth(ctx)
	if errors.Is(err, domain.ErrCorruptSnapshot) {
		attemptsTotal.WithLabelValues("corrupt").Inc()
		s.logger.Error("discarded corrupt buffered snapshot", zap.Error(err))
		return AttemptResult{}, nil
	}
	if err != nil {
		attemptsTotal.WithLabelValues("error").Inc()
		return AttemptResult{}, storeError(err)
	}
	if !ok {
		attemptsTotal.WithLabelValues("incomplete").Inc()
		return AttemptResult{}, nil
	}

	start := time.Now()
	defer func() { attemptDuration.Observe(time.Since(start).Seconds()) }()

	return s.process(ctx, pending)
}

func (s *CorrelationService) process(ctx context.Context, pending domain.Pending) (AttemptResult, error) {
	customers := pending.Customers.Records
	products := pending.Products.Records

	s.logger.Info("starting correlation",
		zap.Int("customer_count", len(customers)),
		zap.Int("product_count", len(products)),
		zap.Int("previous_failures", pending.Attempts()),
	)

	c := correlate(customers, products, s.mergeOpts...)
	for _, m := range c.merged {
		s.logger.Debug("merged customer with products",
			zap.String("customer_id", m.Customer.ID),
			zap.String("merge_id", m.MergeID),
			zap.Int("product_count", m.Summary.TotalProducts),
		)
	}

	attempt := domain.Attempt{
		CustomerCount: len(customers),
		ProductCount:  len(products),
		MergedCount:   len(c.merged),
		CreatedAt:     s.now().UTC(),
	}

	var (
		resultErr error
		written   restored
	)
	if len(c.merged) == 0 {
		attempt.Outcome = domain.AttemptOutcomeNoMatch
		written = s.settleUnmatched(ctx, c)
	} else {
		batch, err := s.sink.SendBatch(ctx, c.merged)
		attempt.BatchNumber = batch

		if err == nil {
			attempt.Outcome = domain.AttemptOutcomeDelivered
			mergedRecordsTotal.Add(float64(len(c.merged)))
			written = s.settleUnmatched(ctx, c)
		} else {
			accepted := acceptedCount(err, len(c.merged))
			mergedRecordsTotal.Add(float64(accepted))

			attempt.Outcome = domain.AttemptOutcomeDeliveryFailed
			attempt.ErrorMessage = err.Error()
			s.logger.Error("delivery to analytics failed",
				zap.String("batch_number", batch),
				zap.Int("merged_count", len(c.merged)),
				zap.Int("accepted_count", accepted),
				zap.String("policy", string(s.opts.DeliveryFailure)),
				zap.Error(err),
			)

			retained := false
			if s.opts.DeliveryFailure == RetainOnDeliveryFailure {
				retained, written, resultErr = s.retain(ctx, pending, c.merged[:accepted])
			}
			if retained {
				attempt.Outcome = domain.AttemptOutcomeRetained
			} else {
				droppedRecordsTotal.WithLabelValues("delivery_failed").Add(float64(len(c.merged) - accepted))
				written = s.settleUnmatched(ctx, c)
			}
		}
	}

	attemptsTotal.WithLabelValues(string(attempt.Outcome)).Inc()
	s.record(ctx, attempt)

	s.logger.Info("correlation complete",
		zap.String("outcome", string(attempt.Outcome)),
		zap.Int("merged_count", attempt.MergedCount),
		zap.String("batch_number", attempt.BatchNumber),
	)

	if written.needsFollowUp() {
		s.followUp(ctx)
	}

	return AttemptResult{
		Taken:       true,
		Outcome:     attempt.Outcome,
		Merged:      attempt.MergedCount,
		BatchNumber: attempt.BatchNumber,
	}, resultErr
}

// restored records which sides an attempt wrote back to the store.
type restored struct {
	customers bool
	products  bool
}

// needsFollowUp reports whether exactly one side was written back. The other
// side may then hold a batch that arrived during delivery and whose own
// attempt found this side missing. When both sides were written, both were
// absent at that moment, so any later arrival runs its own attempt.
func (r restored) needsFollowUp() bool {
	return r.customers != r.products
}

// followUp runs another attempt after a write-back raced with an arrival.
// Its errors are logged; the data stays buffered for the next arrival.
func (s *CorrelationService) followUp(ctx context.Context) {
	result, err := s.Attempt(ctx)
	if err != nil {
		s.logger.Warn("follow-up correlation attempt failed", zap.Error(err))
		return
	}
	if result.Taken {
		s.logger.Info("follow-up attempt correlated data buffered during delivery",
			zap.String("outcome", string(result.Outcome)),
		)
	}
}

// retain writes the taken snapshots back so the next arrival retries them.
// Customers whose records the sink already accepted are left out together
// with their products. Sides that were replaced by a newer arrival in the
// meantime are not overwritten.
func (s *CorrelationService) retain(ctx context.Context, pending domain.Pending, accepted []domain.MergedRecord) (bool, restored, error) {
	var written restored

	next := pending.Attempts() + 1
	if next > s.opts.MaxRedeliveries {
		s.logger.Error("dropping buffered data after repeated delivery failures",
			zap.Int("failures", next),
			zap.Int("max_redeliveries", s.opts.MaxRedeliveries),
		)
		return false, written, nil
	}

	delivered := make(map[string]struct{}, len(accepted))
	for _, m := range accepted {
		delivered[m.Customer.ID] = struct{}{}
	}

	customers := domain.CustomerSnapshot{Attempts: next}
	for _, c := range pending.Customers.Records {
		if _, ok := delivered[c.CustomerID]; !ok {
			customers.Records = append(customers.Records, c)
		}
	}
	products := domain.ProductSnapshot{Attempts: next}
	for _, p := range pending.Products.Records {
		if _, ok := delivered[p.CustomerID]; !ok {
			products.Records = append(products.Records, p)
		}
	}
	if len(customers.Records) == 0 || len(products.Records) == 0 {
		return false, written, nil
	}

	ok, err := s.buffer.RestoreCustomers(ctx, customers, s.opts.TTL)
	if err != nil {
		return false, written, fmt.Errorf("%w: restore customers: %w", ErrTransientIO, err)
	}
	written.customers = ok

	ok, err = s.buffer.RestoreProducts(ctx, products, s.opts.TTL)
	if err != nil {
		return false, written, fmt.Errorf("%w: restore products: %w", ErrTransientIO, err)
	}
	written.products = ok

	s.logger.Warn("retained buffered data for redelivery",
		zap.Int("failures", next),
		zap.Int("customer_count", len(customers.Records)),
		zap.Int("product_count", len(products.Records)),
	)
	return true, written, nil
}

// settleUnmatched applies the unmatched policy to the leftovers of an attempt.
func (s *CorrelationService) settleUnmatched(ctx context.Context, c correlation) restored {
	var written restored
	if len(c.unmatchedCustomer) == 0 && len(c.unmatchedProduct) == 0 {
		return written
	}

	if s.opts.Unmatched != RebufferUnmatched {
		droppedRecordsTotal.WithLabelValues("unmatched_customer").Add(float64(len(c.unmatchedCustomer)))
		droppedRecordsTotal.WithLabelValues("unmatched_product").Add(float64(len(c.unmatchedProduct)))
		s.logger.Info("dropping unmatched records",
			zap.Int("customer_count", len(c.unmatchedCustomer)),
			zap.Int("product_count", len(c.unmatchedProduct)),
		)
		return written
	}

	if len(c.unmatchedCustomer) > 0 {
		snapshot := domain.CustomerSnapshot{Records: c.unmatchedCustomer}
		ok, err := s.buffer.RestoreCustomers(ctx, snapshot, s.opts.TTL)
		if err != nil {
			s.logger.Warn("failed to rebuffer unmatched customers", zap.Error(err))
		} else if !ok {
			s.logger.Debug("newer customers arrived, unmatched customers discarded")
		}
		written.customers = ok
	}
	if len(c.unmatchedProduct) > 0 {
		snapshot := domain.ProductSnapshot{Records: c.unmatchedProduct}
		ok, err := s.buffer.RestoreProducts(ctx, snapshot, s.opts.TTL)
		if err != nil {
			s.logger.Warn("failed to rebuffer unmatched products", zap.Error(err))
		} else if !ok {
			s.logger.Debug("newer products arrived, unmatched products discarded")
		}
		written.products = ok
	}
	return written
}

func (s *CorrelationService) record(ctx context.Context, attempt domain.Attempt) {
	if err := s.ledger.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Warn("failed to record correlation attempt", zap.Error(err))
	}
}

// Buffered reports what is currently waiting for a counterpart.
func (s *CorrelationService) Buffered(ctx context.Context) (domain.Pending, error) {
	pending, err := s.buffer.GetBoth(ctx)
	if err != nil {
		return domain.Pending{}, storeError(err)
	}
	return pending, nil
}

// Reset discards both buffered sides.
func (s *CorrelationService) Reset(ctx context.Context) error {
	if err := s.buffer.ClearBoth(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransientIO, err)
	}
	s.logger.Warn("buffer cleared by operator")
	return nil
}

// RecentAttempts lists ledger entries, newest first.
func (s *CorrelationService) RecentAttempts(ctx context.Context, limit int) ([]domain.Attempt, error) {
	return s.ledger.ListAttempts(ctx, limit)
}

type nopLedger struct{}

func (nopLedger) RecordAttempt(context.Context, domain.Attempt) error { return nil }

func (nopLedger) ListAttempts(context.Context, int) ([]domain.Attempt, error) { return nil, nil }
