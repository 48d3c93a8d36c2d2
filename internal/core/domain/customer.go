package domain

import "encoding/json"

type CustomerStatus string

const (
	CustomerStatusActive    CustomerStatus = "ACTIVE"
	CustomerStatusInactive  CustomerStatus = "INACTIVE"
	CustomerStatusSuspended CustomerStatus = "SUSPENDED"
)

type Customer struct {
	CustomerID       string         `json:"customer_id"`
	FirstName        string         `json:"first_name"`
	LastName         string         `json:"last_name"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	Status           CustomerStatus `json:"status"`
	RegistrationDate string         `json:"registration_date,omitempty"`
}

// UnmarshalJSON accepts registration_timestamp as an alias of registration_date.
func (c *Customer) UnmarshalJSON(b []byte) error {
	type plain Customer
	aux := struct {
		*plain
		RegistrationTimestamp string `json:"registration_timestamp"`
	}{plain: (*plain)(c)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if c.RegistrationDate == "" {
		c.RegistrationDate = aux.RegistrationTimestamp
	}
	return nil
}

func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}
