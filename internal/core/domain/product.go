package domain

import "github.com/shopspring/decimal"

// Money is a fixed-point amount that encodes as a bare JSON number.
type Money struct {
	decimal.Decimal
}

func NewMoney(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, err
	}
	return Money{Decimal: d}, nil
}

func MustMoney(value string) Money {
	m, err := NewMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

type Product struct {
	ProductID   string `json:"product_id"`
	CustomerID  string `json:"customer_id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Price       Money  `json:"price"`
	StockLevel  int    `json:"stock_level"`
	LastUpdated string `json:"last_updated,omitempty"`
}
