package reconcile

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/reconciler/internal/domain"
)

// Result is the complete output of one reconciliation pass: the status
// transitions for the storage layer to persist, and the report for the caller.
type Result struct {
	Transitions []domain.StatusTransition `json:"transitions"`
	Report      domain.Report             `json:"report"`
}

// Engine matches completed orders against completed payments for a snapshot
// of records. It is a pure computation: it holds no state between runs, never
// mutates its inputs, and is safe to invoke repeatedly — records already
// reconciled are simply not eligible input and produce nothing.
type Engine struct {
	// WindowDays is the inclusive calendar-day tolerance between order date
	// and payment date. Defaults to 3.
	WindowDays int
}

// NewEngine builds an engine with the tolerance window taken from the
// RECONCILE_WINDOW_DAYS environment variable, defaulting to 3 days.
func NewEngine() *Engine {
	return &Engine{WindowDays: windowDays()}
}

func windowDays() int {
	if v := os.Getenv("RECONCILE_WINDOW_DAYS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			return d
		}
	}
	return 3
}

// candidate is a provisionally eligible pair: same merchant, same merchant
// order id, equal amount and currency, date delta within the window.
type candidate struct {
	order   domain.Order
	payment domain.Payment
	delta   int
}

// merchantGroup buckets one merchant's eligible records by merchant order id.
type merchantGroup struct {
	orders   map[string][]domain.Order
	payments map[string][]domain.Payment
}

// Reconcile runs one pass over the given snapshot. Records not in status
// "completed" pass through untouched: no transition, no discrepancy. Every
// completed record lands in exactly one of the transition list or the
// discrepancy list. asOf stamps the discrepancies produced by the run.
func (e *Engine) Reconcile(orders []domain.Order, payments []domain.Payment, asOf time.Time) Result {
	window := e.WindowDays
	if window <= 0 {
		window = 3
	}

	var discs []domain.Discrepancy
	groups := make(map[int64]*merchantGroup)

	group := func(merchantID int64) *merchantGroup {
		g, ok := groups[merchantID]
		if !ok {
			g = &merchantGroup{
				orders:   make(map[string][]domain.Order),
				payments: make(map[string][]domain.Payment),
			}
			groups[merchantID] = g
		}
		return g
	}

	// Validate and bucket. Malformed records are reported up front so they
	// can never poison an id group.
	for _, o := range orders {
		if o.Status != domain.StatusCompleted {
			continue
		}
		if detail, ok := validateRecord(o.MerchantOrderID, o.Amount); !ok {
			discs = append(discs, orderDiscrepancy(o, domain.ReasonInvalidRecord, detail, asOf))
			continue
		}
		g := group(o.MerchantID)
		g.orders[o.MerchantOrderID] = append(g.orders[o.MerchantOrderID], o)
	}
	for _, p := range payments {
		if p.Status != domain.StatusCompleted {
			continue
		}
		if detail, ok := validateRecord(p.MerchantOrderID, p.Amount); !ok {
			discs = append(discs, paymentDiscrepancy(p, domain.ReasonInvalidRecord, detail, asOf))
			continue
		}
		g := group(p.MerchantID)
		g.payments[p.MerchantOrderID] = append(g.payments[p.MerchantOrderID], p)
	}

	var candidates []candidate

	// Sorted iteration keeps run output deterministic.
	merchantIDs := make([]int64, 0, len(groups))
	for id := range groups {
		merchantIDs = append(merchantIDs, id)
	}
	sort.Slice(merchantIDs, func(i, j int) bool { return merchantIDs[i] < merchantIDs[j] })

	for _, mid := range merchantIDs {
		g := groups[mid]

		ids := make(map[string]struct{}, len(g.orders)+len(g.payments))
		for id := range g.orders {
			ids[id] = struct{}{}
		}
		for id := range g.payments {
			ids[id] = struct{}{}
		}
		sorted := make([]string, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Strings(sorted)

		for _, id := range sorted {
			ords, pays := g.orders[id], g.payments[id]

			// Constraint violation: more than one record on a side shares
			// the id. Everything under the id is reported, nothing matched;
			// comparing a lone counterpart against an ambiguous group would
			// pick an answer arbitrarily.
			if len(ords) > 1 || len(pays) > 1 {
				dupSide := domain.EntityOrder
				if len(pays) > 1 {
					dupSide = domain.EntityPayment
				}
				detail := fmt.Sprintf("merchant order id %q appears %d times on the %s side", id, maxInt(len(ords), len(pays)), dupSide)
				for _, o := range ords {
					discs = append(discs, orderDiscrepancy(o, domain.ReasonDuplicateID, detail, asOf))
				}
				for _, p := range pays {
					discs = append(discs, paymentDiscrepancy(p, domain.ReasonDuplicateID, detail, asOf))
				}
				continue
			}

			switch {
			case len(ords) == 1 && len(pays) == 0:
				o := ords[0]
				discs = append(discs, orderDiscrepancy(o, domain.ReasonNoCounterpart,
					fmt.Sprintf("no payment with merchant order id %q", id), asOf))
			case len(ords) == 0 && len(pays) == 1:
				p := pays[0]
				discs = append(discs, paymentDiscrepancy(p, domain.ReasonNoCounterpart,
					fmt.Sprintf("no order with merchant order id %q", id), asOf))
			default:
				o, p := ords[0], pays[0]
				if c, reason, detail := evaluatePair(o, p, window); reason == "" {
					candidates = append(candidates, c)
				} else {
					discs = append(discs, orderDiscrepancy(o, reason, detail, asOf))
					discs = append(discs, paymentDiscrepancy(p, reason, detail, asOf))
				}
			}
		}
	}

	// Selector. Id uniqueness already makes the candidate relation
	// one-to-one; the ordering and the used-set guard keep the assignment
	// deterministic and conflict-free if that invariant is ever relaxed.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].delta != candidates[j].delta {
			return candidates[i].delta < candidates[j].delta
		}
		if candidates[i].order.ID != candidates[j].order.ID {
			return candidates[i].order.ID < candidates[j].order.ID
		}
		return candidates[i].payment.ID < candidates[j].payment.ID
	})

	usedOrders := make(map[int64]struct{}, len(candidates))
	usedPayments := make(map[int64]struct{}, len(candidates))

	var transitions []domain.StatusTransition
	var matches []domain.MatchResult

	for _, c := range candidates {
		if _, dup := usedOrders[c.order.ID]; dup {
			discs = append(discs, paymentDiscrepancy(c.payment, domain.ReasonNoCounterpart,
				fmt.Sprintf("order %d already matched earlier in this run", c.order.ID), asOf))
			continue
		}
		if _, dup := usedPayments[c.payment.ID]; dup {
			discs = append(discs, orderDiscrepancy(c.order, domain.ReasonNoCounterpart,
				fmt.Sprintf("payment %d already matched earlier in this run", c.payment.ID), asOf))
			continue
		}
		usedOrders[c.order.ID] = struct{}{}
		usedPayments[c.payment.ID] = struct{}{}

		matches = append(matches, domain.MatchResult{
			OrderID:         c.order.ID,
			PaymentID:       c.payment.ID,
			MerchantID:      c.order.MerchantID,
			MerchantOrderID: c.order.MerchantOrderID,
			Amount:          c.order.Amount,
			DateDeltaDays:   c.delta,
		})
		transitions = append(transitions,
			domain.StatusTransition{Entity: domain.EntityOrder, RecordID: c.order.ID, From: domain.StatusCompleted, To: domain.StatusReconciled},
			domain.StatusTransition{Entity: domain.EntityPayment, RecordID: c.payment.ID, From: domain.StatusCompleted, To: domain.StatusReconciled},
		)
	}

	return Result{
		Transitions: transitions,
		Report: domain.Report{
			Matches:       matches,
			Discrepancies: discs,
			Summary:       summarize(matches, discs),
		},
	}
}

// evaluatePair classifies a one-and-one id group. An empty reason means the
// pair is a candidate. First applicable reason wins: amount, then currency,
// then date tolerance.
func evaluatePair(o domain.Order, p domain.Payment, window int) (candidate, domain.DiscrepancyReason, string) {
	if !o.Amount.Equal(p.Amount) {
		return candidate{}, domain.ReasonAmountMismatch,
			fmt.Sprintf("order amount %s != payment amount %s", o.Amount, p.Amount)
	}
	if o.Currency != p.Currency {
		return candidate{}, domain.ReasonCurrencyMismatch,
			fmt.Sprintf("order currency %s != payment currency %s", o.Currency, p.Currency)
	}
	delta := calendarDayDelta(o.OrderDate, p.PaymentDate)
	if delta > window {
		return candidate{}, domain.ReasonDateOutOfTolerance,
			fmt.Sprintf("date delta %d days exceeds %d-day window", delta, window)
	}
	return candidate{order: o, payment: p, delta: delta}, "", ""
}

func validateRecord(merchantOrderID string, amount decimal.Decimal) (string, bool) {
	if merchantOrderID == "" {
		return "missing merchant order id", false
	}
	if amount.Sign() <= 0 {
		return fmt.Sprintf("non-positive amount %s", amount), false
	}
	return "", true
}

// calendarDayDelta compares the two instants as timezone-naive calendar
// dates and returns the absolute difference in days.
func calendarDayDelta(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	delta := int(db.Sub(da).Hours() / 24)
	if delta < 0 {
		delta = -delta
	}
	return delta
}

func orderDiscrepancy(o domain.Order, reason domain.DiscrepancyReason, detail string, asOf time.Time) domain.Discrepancy {
	return domain.Discrepancy{
		Entity:          domain.EntityOrder,
		RecordID:        o.ID,
		MerchantID:      o.MerchantID,
		MerchantOrderID: o.MerchantOrderID,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Reason:          reason,
		Detail:          detail,
		DetectedAt:      asOf,
	}
}

func paymentDiscrepancy(p domain.Payment, reason domain.DiscrepancyReason, detail string, asOf time.Time) domain.Discrepancy {
	return domain.Discrepancy{
		Entity:          domain.EntityPayment,
		RecordID:        p.ID,
		MerchantID:      p.MerchantID,
		MerchantOrderID: p.MerchantOrderID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Reason:          reason,
		Detail:          detail,
		DetectedAt:      asOf,
	}
}

func summarize(matches []domain.MatchResult, discs []domain.Discrepancy) domain.ReportSummary {
	summary := domain.ReportSummary{
		MatchedAmount: decimal.Zero,
		ByReason:      make(map[domain.DiscrepancyReason]domain.ReasonStat),
	}

	perMerchant := make(map[int64]*domain.MerchantSummary)
	merchant := func(id int64) *domain.MerchantSummary {
		m, ok := perMerchant[id]
		if !ok {
			m = &domain.MerchantSummary{
				MerchantID:    id,
				MatchedAmount: decimal.Zero,
				ByReason:      make(map[domain.DiscrepancyReason]domain.ReasonStat),
			}
			perMerchant[id] = m
		}
		return m
	}

	for _, match := range matches {
		summary.MatchedCount++
		summary.MatchedAmount = summary.MatchedAmount.Add(match.Amount)
		m := merchant(match.MerchantID)
		m.MatchedCount++
		m.MatchedAmount = m.MatchedAmount.Add(match.Amount)
	}

	for _, d := range discs {
		stat := summary.ByReason[d.Reason]
		stat.Count++
		stat.Amount = stat.Amount.Add(d.Amount)
		summary.ByReason[d.Reason] = stat

		m := merchant(d.MerchantID)
		mstat := m.ByReason[d.Reason]
		mstat.Count++
		mstat.Amount = mstat.Amount.Add(d.Amount)
		m.ByReason[d.Reason] = mstat

		switch d.Entity {
		case domain.EntityOrder:
			m.UnmatchedOrders++
		case domain.EntityPayment:
			m.UnmatchedPayments++
		}
	}

	ids := make([]int64, 0, len(perMerchant))
	for id := range perMerchant {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		summary.Merchants = append(summary.Merchants, *perMerchant[id])
	}

	return summary
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
