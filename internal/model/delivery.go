package model

import (
	"time"
)

// Order is the read-only view of a commerce order the lifecycle needs.
type Order struct {
	ID            string     `json:"id" db:"id"`
	Number        string     `json:"number" db:"number"`
	Status        string     `json:"status" db:"status"`
	PaymentMethod string     `json:"payment_method" db:"payment_method"`
	Total         float64    `json:"total" db:"total"`
	Shipping      Address    `json:"shipping"`
	Billing       Address    `json:"billing"`
	BillingCUI    string     `json:"billing_cui,omitempty" db:"billing_cui"`
	Items         []LineItem `json:"items"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Street    string `json:"street"`
	Street2   string `json:"street2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country"`
	ZipCode   string `json:"zip_code"`
}

// ContactName is "first last" with surrounding blanks removed.
func (a Address) ContactName() string {
	name := a.FirstName
	if a.LastName != "" {
		name += " " + a.LastName
	}
	return trimSpace(name)
}

type LineItem struct {
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name"`
	SKU        string            `json:"sku,omitempty"`
	Quantity   int               `json:"quantity"`
	WeightKg   float64           `json:"weight_kg"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// OrderFilter selects orders for health reports.
type OrderFilter struct {
	Statuses     []string
	CreatedAfter time.Time
	Limit        int
}
