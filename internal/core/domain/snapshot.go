package domain

type Side string

const (
	SideCustomers Side = "customers"
	SideProducts  Side = "products"
)

type CustomerSnapshot struct {
	Attempts int        `json:"attempts"` // failed delivery rounds already spent on this data
	Records  []Customer `json:"records"`
}

type ProductSnapshot struct {
	Attempts int       `json:"attempts"`
	Records  []Product `json:"records"`
}

// Pending holds what is currently buffered. A nil side is absent.
type Pending struct {
	Customers *CustomerSnapshot
	Products  *ProductSnapshot
}

func (p Pending) Complete() bool {
	return p.Customers != nil && p.Products != nil
}

func (p Pending) Attempts() int {
	n := 0
	if p.Customers != nil {
		n = p.Customers.Attempts
	}
	if p.Products != nil && p.Products.Attempts > n {
		n = p.Products.Attempts
	}
	return n
}
