package ingestion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpay/reconciler/internal/domain"
	"github.com/meridianpay/reconciler/internal/reconcile"
	"github.com/meridianpay/reconciler/internal/repository"
)

func TestParseOrdersCSV(t *testing.T) {
	data := []byte(`merchant_id,merchant_order_id,amount,currency,order_date,status,description
MERCHANT_A,ORDER_001,100.00,USD,2025-01-29,completed,first order
MERCHANT_A,ORDER_002,250.50,usd,2025-01-30,,
MERCHANT_B,ORDER_001,75.25,EUR,2025-01-31,pending,
`)

	rows, err := ParseOrdersCSV(data)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "MERCHANT_A", rows[0].MerchantID)
	assert.Equal(t, "ORDER_001", rows[0].MerchantOrderID)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, "first order", rows[0].Description)
	assert.Equal(t, domain.StatusCompleted, rows[0].Status)

	// Currency is upcased, blank status defaults to completed.
	assert.Equal(t, "USD", rows[1].Currency)
	assert.Equal(t, domain.StatusCompleted, rows[1].Status)

	assert.Equal(t, domain.StatusPending, rows[2].Status)
}

func TestParseOrdersCSVRejectsBadLines(t *testing.T) {
	cases := map[string]string{
		"bad amount":    "merchant_id,merchant_order_id,amount,currency,order_date\nMERCHANT_A,ORDER_001,abc,USD,2025-01-29\n",
		"bad date":      "merchant_id,merchant_order_id,amount,currency,order_date\nMERCHANT_A,ORDER_001,10.00,USD,January 29\n",
		"bad currency":  "merchant_id,merchant_order_id,amount,currency,order_date\nMERCHANT_A,ORDER_001,10.00,DOLLARS,2025-01-29\n",
		"bad status":    "merchant_id,merchant_order_id,amount,currency,order_date,status\nMERCHANT_A,ORDER_001,10.00,USD,2025-01-29,settled\n",
		"missing id":    "merchant_id,merchant_order_id,amount,currency,order_date\nMERCHANT_A,,10.00,USD,2025-01-29\n",
		"short header":  "merchant_id,amount\n",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOrdersCSV([]byte(csv))
			assert.Error(t, err)
		})
	}
}

func TestParsePaymentsCSV(t *testing.T) {
	data := []byte(`merchant_id,merchant_order_id,amount,currency,payment_date
MERCHANT_A,ORDER_001,100.00,USD,2025-01-30
`)
	rows, err := ParsePaymentsCSV(data)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusCompleted, rows[0].Status)
	assert.Equal(t, "2025-01-30", rows[0].PaymentDate.Format("2006-01-02"))
}

func newTestService(t *testing.T) (*Service, *repository.MerchantRepo, *repository.OrderRepo, *repository.PaymentRepo) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	merchants := repository.NewMerchantRepo(db)
	orders := repository.NewOrderRepo(db)
	payments := repository.NewPaymentRepo(db)
	imports := repository.NewImportRepo(db)
	reconSvc := reconcile.NewService(orders, payments, repository.NewReconcileRepo(db), &reconcile.Engine{WindowDays: 3})

	return NewService(merchants, orders, payments, imports, reconSvc), merchants, orders, payments
}

func TestImportOrdersAndPayments(t *testing.T) {
	svc, merchants, _, _ := newTestService(t)
	require.NoError(t, merchants.Insert(&domain.Merchant{MerchantID: "MERCHANT_A", Name: "Acme"}))

	orderCSV := []byte("merchant_id,merchant_order_id,amount,currency,order_date\nMERCHANT_A,ORDER_001,100.00,USD,2025-01-29\n")
	result, err := svc.Import(orderCSV, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsImported)
	assert.Zero(t, result.MatchedAfter)

	payCSV := []byte("merchant_id,merchant_order_id,amount,currency,payment_date\nMERCHANT_A,ORDER_001,100.00,USD,2025-01-30\n")
	result, err = svc.Import(payCSV, "payments")
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsImported)
	assert.Equal(t, 1, result.MatchedAfter, "import should trigger reconciliation")
}

func TestImportIsIdempotentByHash(t *testing.T) {
	svc, merchants, _, _ := newTestService(t)
	require.NoError(t, merchants.Insert(&domain.Merchant{MerchantID: "MERCHANT_A", Name: "Acme"}))

	data := []byte("merchant_id,merchant_order_id,amount,currency,order_date\nMERCHANT_A,ORDER_001,100.00,USD,2025-01-29\n")

	first, err := svc.Import(data, "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, first.RecordsImported)

	second, err := svc.Import(data, "orders")
	require.NoError(t, err)
	assert.Equal(t, "already-ingested", second.ImportID)
	assert.Zero(t, second.RecordsImported)
}

func TestImportUnknownMerchantFails(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	data := []byte("merchant_id,merchant_order_id,amount,currency,order_date\nNOBODY,ORDER_001,100.00,USD,2025-01-29\n")
	_, err := svc.Import(data, "orders")
	assert.Error(t, err)
}

func TestImportUnknownKindFails(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Import([]byte("x\n"), "refunds")
	assert.Error(t, err)
}
