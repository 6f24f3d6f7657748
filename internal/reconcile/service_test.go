package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpay/reconciler/internal/domain"
	"github.com/meridianpay/reconciler/internal/repository"
)

func newTestService(t *testing.T) (*Service, *repository.MerchantRepo, *repository.OrderRepo, *repository.PaymentRepo) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	merchants := repository.NewMerchantRepo(db)
	orders := repository.NewOrderRepo(db)
	payments := repository.NewPaymentRepo(db)
	store := repository.NewReconcileRepo(db)

	svc := NewService(orders, payments, store, newTestEngine())
	return svc, merchants, orders, payments
}

func TestServiceRunAppliesTransitions(t *testing.T) {
	svc, merchants, orders, payments := newTestService(t)

	m := &domain.Merchant{MerchantID: "MERCHANT_A", Name: "Acme"}
	require.NoError(t, merchants.Insert(m))

	o := order(0, m.ID, "ORDER_001", "100.00", "USD", "2025-01-29", domain.StatusCompleted)
	require.NoError(t, orders.Insert(&o))
	p := payment(0, m.ID, "ORDER_001", "100.00", "USD", "2025-01-30", domain.StatusCompleted)
	require.NoError(t, payments.Insert(&p))

	result, err := svc.Run()
	require.NoError(t, err)
	assert.Len(t, result.Transitions, 2)
	assert.Equal(t, 1, result.Report.Summary.MatchedCount)

	stored, err := orders.GetByMerchantOrderID(m.ID, "ORDER_001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReconciled, stored.Status)

	storedPay, err := payments.GetByMerchantOrderID(m.ID, "ORDER_001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReconciled, storedPay.Status)
}

func TestServiceRunIsIdempotent(t *testing.T) {
	svc, merchants, orders, payments := newTestService(t)

	m := &domain.Merchant{MerchantID: "MERCHANT_A", Name: "Acme"}
	require.NoError(t, merchants.Insert(m))

	o := order(0, m.ID, "ORDER_001", "100.00", "USD", "2025-01-29", domain.StatusCompleted)
	require.NoError(t, orders.Insert(&o))
	p := payment(0, m.ID, "ORDER_001", "100.00", "USD", "2025-01-30", domain.StatusCompleted)
	require.NoError(t, payments.Insert(&p))

	first, err := svc.Run()
	require.NoError(t, err)
	require.Len(t, first.Transitions, 2)

	second, err := svc.Run()
	require.NoError(t, err)
	assert.Empty(t, second.Transitions, "re-running against applied state must be a no-op")
	assert.Empty(t, second.Report.Discrepancies)
}

func TestServicePreviewDoesNotApply(t *testing.T) {
	svc, merchants, orders, payments := newTestService(t)

	m := &domain.Merchant{MerchantID: "MERCHANT_A", Name: "Acme"}
	require.NoError(t, merchants.Insert(m))

	o := order(0, m.ID, "ORDER_001", "100.00", "USD", "2025-01-29", domain.StatusCompleted)
	require.NoError(t, orders.Insert(&o))
	p := payment(0, m.ID, "ORDER_001", "100.01", "USD", "2025-01-30", domain.StatusCompleted)
	require.NoError(t, payments.Insert(&p))

	report, err := svc.Preview()
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 2)
	assert.Equal(t, domain.ReasonAmountMismatch, report.Discrepancies[0].Reason)

	// Nothing was applied.
	stored, err := orders.GetByMerchantOrderID(m.ID, "ORDER_001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
}
