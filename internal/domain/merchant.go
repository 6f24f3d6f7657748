package domain

import "time"

// Merchant is the scope boundary for reconciliation. Orders and payments
// belong to exactly one merchant and are never matched across merchants.
type Merchant struct {
	ID         int64     `json:"id"`
	MerchantID string    `json:"merchant_id"`
	Name       string    `json:"merchant_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
