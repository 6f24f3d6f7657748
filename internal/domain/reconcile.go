package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchResult records one accepted (order, payment) pair for a run.
type MatchResult struct {
	OrderID         int64           `json:"order_id"`
	PaymentID       int64           `json:"payment_id"`
	MerchantID      int64           `json:"merchant_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	DateDeltaDays   int             `json:"date_delta_days"`
}

// StatusTransition is the only mutation the engine produces. The storage
// collaborator applies it; the engine itself persists nothing.
type StatusTransition struct {
	Entity   EntityKind `json:"entity"`
	RecordID int64      `json:"record_id"`
	From     Status     `json:"from"`
	To       Status     `json:"to"`
}

type DiscrepancyReason string

const (
	ReasonNoCounterpart      DiscrepancyReason = "no_counterpart"
	ReasonAmountMismatch     DiscrepancyReason = "amount_mismatch"
	ReasonCurrencyMismatch   DiscrepancyReason = "currency_mismatch"
	ReasonDateOutOfTolerance DiscrepancyReason = "date_out_of_tolerance"
	ReasonDuplicateID        DiscrepancyReason = "duplicate_id"
	ReasonInvalidRecord      DiscrepancyReason = "invalid_record"
)

// Discrepancy tags a completed record that could not be matched with exactly
// one reason. Discrepancies are ephemeral run output, never stored.
type Discrepancy struct {
	Entity          EntityKind        `json:"entity"`
	RecordID        int64             `json:"record_id"`
	MerchantID      int64             `json:"merchant_id"`
	MerchantOrderID string            `json:"merchant_order_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Reason          DiscrepancyReason `json:"reason"`
	Detail          string            `json:"detail"`
	DetectedAt      time.Time         `json:"detected_at"`
}

// ReasonStat aggregates count and summed amount for one discrepancy reason.
type ReasonStat struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// MerchantSummary is the per-merchant slice of a run's aggregates.
type MerchantSummary struct {
	MerchantID        int64                            `json:"merchant_id"`
	MatchedCount      int                              `json:"matched_count"`
	MatchedAmount     decimal.Decimal                  `json:"matched_amount"`
	UnmatchedOrders   int                              `json:"unmatched_orders"`
	UnmatchedPayments int                              `json:"unmatched_payments"`
	ByReason          map[DiscrepancyReason]ReasonStat `json:"by_reason"`
}

// ReportSummary holds run-level aggregates, overall and per merchant.
type ReportSummary struct {
	MatchedCount  int                              `json:"matched_count"`
	MatchedAmount decimal.Decimal                  `json:"matched_amount"`
	ByReason      map[DiscrepancyReason]ReasonStat `json:"by_reason"`
	Merchants     []MerchantSummary                `json:"merchants"`
}

// Report is the full output of one reconciliation pass.
type Report struct {
	Matches       []MatchResult `json:"matches"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Summary       ReportSummary `json:"summary"`
}
