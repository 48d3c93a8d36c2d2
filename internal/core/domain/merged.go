package domain

type CustomerSummary struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Email  string         `json:"email"`
	Phone  string         `json:"phone"`
	Status CustomerStatus `json:"status"`
}

type ProductSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Price      Money  `json:"price"`
	StockLevel int    `json:"stock_level"`
}

type Summary struct {
	TotalProducts int   `json:"total_products"`
	TotalValue    Money `json:"total_value"`
}

// MergedRecord is one customer joined with the products buffered for it.
// It is built during a correlation attempt and never persisted.
type MergedRecord struct {
	MergeID   string           `json:"merge_id"`
	Customer  CustomerSummary  `json:"customer"`
	Products  []ProductSummary `json:"products"`
	Summary   Summary          `json:"summary"`
	Timestamp string           `json:"timestamp"`
}
