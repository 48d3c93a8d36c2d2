package broker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/core/domain"
	"github.com/rl1809/correlator/internal/core/service"
)

const (
	DefaultCustomerQueue  = "customer.data.queue"
	DefaultInventoryQueue = "inventory.data.queue"
)

// Handler processes the body of one delivery from Queue.
type Handler interface {
	Queue() string
	Process(ctx context.Context, body []byte) error
}

// Ingestor is the part of the correlation service the handlers feed.
type Ingestor interface {
	AddCustomers(ctx context.Context, customers []domain.Customer) error
	AddProducts(ctx context.Context, products []domain.Product) error
}

type CustomerHandler struct {
	queue    string
	ingestor Ingestor
	logger   *zap.Logger
}

func NewCustomerHandler(queue string, ingestor Ingestor, logger *zap.Logger) *CustomerHandler {
	if queue == "" {
		queue = DefaultCustomerQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerHandler{queue: queue, ingestor: ingestor, logger: logger}
}

func (h *CustomerHandler) Queue() string { return h.queue }

func (h *CustomerHandler) Process(ctx context.Context, body []byte) error {
	batch, err := DecodeBatch[domain.Customer](body)
	if err != nil {
		return err
	}

	h.logger.Info("received customer batch",
		zap.Int("customer_count", len(batch.Records)),
		zap.String("correlation_id", batch.CorrelationID),
	)
	return ingestError(h.ingestor.AddCustomers(ctx, batch.Records))
}

type ProductHandler struct {
	queue    string
	ingestor Ingestor
	logger   *zap.Logger
}

func NewProductHandler(queue string, ingestor Ingestor, logger *zap.Logger) *ProductHandler {
	if queue == "" {
		queue = DefaultInventoryQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{queue: queue, ingestor: ingestor, logger: logger}
}

func (h *ProductHandler) Queue() string { return h.queue }

func (h *ProductHandler) Process(ctx context.Context, body []byte) error {
	batch, err := DecodeBatch[domain.Product](body)
	if err != nil {
		return err
	}

	h.logger.Info("received product batch",
		zap.Int("product_count", len(batch.Records)),
		zap.String("correlation_id", batch.CorrelationID),
	)
	return ingestError(h.ingestor.AddProducts(ctx, batch.Records))
}

// an empty batch can never succeed, so it is treated like a bad payload
func ingestError(err error) error {
	if errors.Is(err, service.ErrEmptyBatch) {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	return err
}
