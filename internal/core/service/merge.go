package service

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/correlator/internal/core/domain"
)

type mergeConfig struct {
	mergeID func() string
	now     func() time.Time
}

type MergeOption func(*mergeConfig)

func WithMergeID(fn func() string) MergeOption {
	return func(c *mergeConfig) { c.mergeID = fn }
}

func WithClock(now func() time.Time) MergeOption {
	return func(c *mergeConfig) { c.now = now }
}

// NewMergeID returns MERGE_ followed by eight upper-case hex characters.
func NewMergeID() string {
	return "MERGE_" + shortID()
}

func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Merge builds the analytic record for one customer and its products.
// Products keep their input order and TotalValue is the exact decimal sum.
func Merge(customer domain.Customer, products []domain.Product, opts ...MergeOption) domain.MergedRecord {
	cfg := mergeConfig{mergeID: NewMergeID, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	summaries := make([]domain.ProductSummary, 0, len(products))
	total := domain.Money{}
	for _, p := range products {
		summaries = append(summaries, domain.ProductSummary{
			ID:         p.ProductID,
			Name:       p.Name,
			Category:   p.Category,
			Price:      p.Price,
			StockLevel: p.StockLevel,
		})
		total.Decimal = total.Add(p.Price.Decimal)
	}

	return domain.MergedRecord{
		MergeID: cfg.mergeID(),
		Customer: domain.CustomerSummary{
			ID:     customer.CustomerID,
			Name:   customer.FullName(),
			Email:  customer.Email,
			Phone:  customer.Phone,
			Status: customer.Status,
		},
		Products: summaries,
		Summary: domain.Summary{
			TotalProducts: len(products),
			TotalValue:    total,
		},
		Timestamp: cfg.now().UTC().Format(time.RFC3339Nano),
	}
}

// correlation is the result of joining one customer snapshot with one
// product snapshot.
type correlation struct {
	merged            []domain.MergedRecord
	unmatchedCustomer []domain.Customer
	unmatchedProduct  []domain.Product
}

func correlate(customers []domain.Customer, products []domain.Product, opts ...MergeOption) correlation {
	byCustomer := make(map[string][]domain.Product, len(products))
	for _, p := range products {
		byCustomer[p.CustomerID] = append(byCustomer[p.CustomerID], p)
	}

	var out correlation
	matched := make(map[string]bool, len(customers))
	for _, c := range customers {
		group := byCustomer[c.CustomerID]
		if len(group) == 0 {
			out.unmatchedCustomer = append(out.unmatchedCustomer, c)
			continue
		}
		out.merged = append(out.merged, Merge(c, group, opts...))
		matched[c.CustomerID] = true
	}

	for _, p := range products {
		if !matched[p.CustomerID] {
			out.unmatchedProduct = append(out.unmatchedProduct, p)
		}
	}

	return out
}
