package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/correlator/internal/core/domain"
	"github.com/rl1809/correlator/internal/core/service"
)

type fakeIngestor struct {
	customers [][]domain.Customer
	products  [][]domain.Product
	err       error
}

func (f *fakeIngestor) AddCustomers(_ context.Context, customers []domain.Customer) error {
	if len(customers) == 0 {
		return service.ErrEmptyBatch
	}
	f.customers = append(f.customers, customers)
	return f.err
}

func (f *fakeIngestor) AddProducts(_ context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return service.ErrEmptyBatch
	}
	f.products = append(f.products, products)
	return f.err
}

func TestCustomerHandler_Process(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewCustomerHandler("", ing, zap.NewNop())

	assert.Equal(t, DefaultCustomerQueue, h.Queue())

	err := h.Process(context.Background(), []byte(`{"data":[{"customer_id":"C1"},{"customer_id":"C2"}]}`))
	require.NoError(t, err)

	require.Len(t, ing.customers, 1)
	assert.Len(t, ing.customers[0], 2)
}

func TestProductHandler_Process(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewProductHandler("products.q", ing, zap.NewNop())

	assert.Equal(t, "products.q", h.Queue())

	err := h.Process(context.Background(), []byte(`{"product_id":"P1","customer_id":"C1","price":3}`))
	require.NoError(t, err)

	require.Len(t, ing.products, 1)
	assert.Equal(t, "P1", ing.products[0][0].ProductID)
}

func TestHandler_EmptyBatchIsMalformed(t *testing.T) {
	h := NewProductHandler("", &fakeIngestor{}, nil)

	err := h.Process(context.Background(), []byte(`{"data":[]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.ErrorIs(t, err, service.ErrEmptyBatch)
}

func TestHandler_MalformedBodyNeverReachesService(t *testing.T) {
	ing := &fakeIngestor{}
	h := NewCustomerHandler("", ing, nil)

	err := h.Process(context.Background(), []byte(`"just a string"`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.Empty(t, ing.customers)
}

func TestHandler_PassesTransientErrorsThrough(t *testing.T) {
	ing := &fakeIngestor{err: fmt.Errorf("%w: redis down", service.ErrTransientIO)}
	h := NewCustomerHandler("", ing, nil)

	err := h.Process(context.Background(), []byte(`[{"customer_id":"C1"}]`))
	assert.True(t, errors.Is(err, service.ErrTransientIO))
	assert.False(t, errors.Is(err, ErrMalformedMessage))
}
