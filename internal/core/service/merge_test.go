package service

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/correlator/internal/core/domain"
)

func TestMerge_FieldMapping(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	customer := domain.Customer{
		CustomerID: "C1",
		FirstName:  "Ann",
		LastName:   "Lee",
		Email:      "a@x.com",
		Phone:      "555-0100",
		Status:     domain.CustomerStatusActive,
	}
	products := []domain.Product{
		{ProductID: "P1", CustomerID: "C1", Name: "Laptop", Category: "Electronics", Price: domain.MustMoney("10.00"), StockLevel: 4},
		{ProductID: "P2", CustomerID: "C1", Name: "Mouse", Category: "Electronics", Price: domain.MustMoney("5.50"), StockLevel: 0},
	}

	rec := Merge(customer, products, WithMergeID(func() string { return "MERGE_TEST0001" }), WithClock(func() time.Time { return fixed }))

	assert.Equal(t, "MERGE_TEST0001", rec.MergeID)
	assert.Equal(t, "Ann Lee", rec.Customer.Name)
	assert.Equal(t, "a@x.com", rec.Customer.Email)
	assert.Equal(t, domain.CustomerStatusActive, rec.Customer.Status)
	require.Len(t, rec.Products, 2)
	assert.Equal(t, "Laptop", rec.Products[0].Name)
	assert.Equal(t, 4, rec.Products[0].StockLevel)
	assert.Equal(t, 2, rec.Summary.TotalProducts)
	assert.Equal(t, "15.5", rec.Summary.TotalValue.String())
	assert.Equal(t, "2026-03-01T12:00:00Z", rec.Timestamp)
}

func TestMerge_ExactDecimalSum(t *testing.T) {
	prices := []string{"0.1", "0.2", "0.3", "19.99", "1000000.01"}
	var products []domain.Product
	for _, p := range prices {
		products = append(products, domain.Product{CustomerID: "C1", Price: domain.MustMoney(p)})
	}

	rec := Merge(domain.Customer{CustomerID: "C1"}, products)

	assert.True(t, rec.Summary.TotalValue.Equal(domain.MustMoney("1000020.60").Decimal),
		"got %s", rec.Summary.TotalValue.String())
}

func TestMerge_IdempotentApartFromIDAndTimestamp(t *testing.T) {
	customer := domain.Customer{CustomerID: "C1", FirstName: "A", LastName: "B"}
	products := []domain.Product{{ProductID: "P1", CustomerID: "C1", Price: domain.MustMoney("2.50")}}

	first := Merge(customer, products)
	second := Merge(customer, products)

	assert.NotEqual(t, first.MergeID, second.MergeID)
	assert.Equal(t, first.Customer, second.Customer)
	assert.Equal(t, first.Products, second.Products)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestNewMergeID_Format(t *testing.T) {
	id := NewMergeID()
	assert.Regexp(t, regexp.MustCompile(`^MERGE_[0-9A-F]{8}$`), id)
}

func TestMerge_JSONShape(t *testing.T) {
	rec := Merge(
		domain.Customer{CustomerID: "C1", FirstName: "Ann", LastName: "Lee"},
		[]domain.Product{{ProductID: "P1", CustomerID: "C1", Price: domain.MustMoney("10.00")}},
		WithMergeID(func() string { return "MERGE_00000000" }),
	)

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	summary := decoded["summary"].(map[string]any)
	assert.Equal(t, float64(10), summary["total_value"], "amounts encode as JSON numbers")
	assert.Equal(t, float64(1), summary["total_products"])
	assert.Equal(t, "Ann Lee", decoded["customer"].(map[string]any)["name"])
}

func TestCustomer_RegistrationTimestampAlias(t *testing.T) {
	var c domain.Customer
	require.NoError(t, json.Unmarshal([]byte(`{"customer_id":"C1","registration_timestamp":"2024-01-01T00:00:00Z"}`), &c))
	assert.Equal(t, "C1", c.CustomerID)
	assert.Equal(t, "2024-01-01T00:00:00Z", c.RegistrationDate)
}
