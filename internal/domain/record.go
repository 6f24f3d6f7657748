package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReconciled Status = "reconciled"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusReconciled:
		return true
	}
	return false
}

type EntityKind string

const (
	EntityOrder   EntityKind = "order"
	EntityPayment EntityKind = "payment"
)

// Order is an expected transaction submitted by a merchant. Amounts carry
// exact decimal semantics; matching compares them with Equal, never floats.
type Order struct {
	ID              int64           `json:"id"`
	MerchantID      int64           `json:"merchant_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description,omitempty"`
	OrderDate       time.Time       `json:"order_date"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Payment is an actual transaction reported by a payment processor, keyed to
// its order by the merchant-scoped order id.
type Payment struct {
	ID              int64           `json:"id"`
	MerchantID      int64           `json:"merchant_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description,omitempty"`
	PaymentDate     time.Time       `json:"payment_date"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
