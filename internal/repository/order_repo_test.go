package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpay/reconciler/internal/domain"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMerchant(t *testing.T, db *sql.DB, businessID string) int64 {
	t.Helper()
	m := &domain.Merchant{MerchantID: businessID, Name: businessID + " Inc"}
	require.NoError(t, NewMerchantRepo(db).Insert(m))
	return m.ID
}

func testOrder(merchantID int64, orderID, amount string, status domain.Status) domain.Order {
	return domain.Order{
		MerchantID:      merchantID,
		MerchantOrderID: orderID,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "USD",
		OrderDate:       time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC),
		Status:          status,
	}
}

func TestOrderInsertAndGet(t *testing.T) {
	db := testDB(t)
	mid := testMerchant(t, db, "MERCHANT_A")
	repo := NewOrderRepo(db)

	o := testOrder(mid, "ORDER_001", "100.00", domain.StatusCompleted)
	require.NoError(t, repo.Insert(&o))
	assert.NotZero(t, o.ID)

	got, err := repo.GetByMerchantOrderID(mid, "ORDER_001")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("100.00")),
		"amount must survive the round-trip exactly, got %s", got.Amount)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, time.Date(2025, 1, 29, 0, 0, 0, 0, time.UTC), got.OrderDate)
}

func TestOrderInsertDuplicate(t *testing.T) {
	db := testDB(t)
	mid := testMerchant(t, db, "MERCHANT_A")
	repo := NewOrderRepo(db)

	o1 := testOrder(mid, "ORDER_001", "100.00", domain.StatusPending)
	require.NoError(t, repo.Insert(&o1))

	o2 := testOrder(mid, "ORDER_001", "200.00", domain.StatusPending)
	err := repo.Insert(&o2)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestOrderSameIDAcrossMerchants(t *testing.T) {
	// The merchant order id is unique per merchant, not globally.
	db := testDB(t)
	ma := testMerchant(t, db, "MERCHANT_A")
	mb := testMerchant(t, db, "MERCHANT_B")
	repo := NewOrderRepo(db)

	oa := testOrder(ma, "ORDER_001", "100.00", domain.StatusPending)
	require.NoError(t, repo.Insert(&oa))
	ob := testOrder(mb, "ORDER_001", "100.00", domain.StatusPending)
	require.NoError(t, repo.Insert(&ob))
}

func TestOrderGetNotFound(t *testing.T) {
	db := testDB(t)
	mid := testMerchant(t, db, "MERCHANT_A")

	_, err := NewOrderRepo(db).GetByMerchantOrderID(mid, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderListByStatus(t *testing.T) {
	db := testDB(t)
	mid := testMerchant(t, db, "MERCHANT_A")
	repo := NewOrderRepo(db)

	for _, o := range []domain.Order{
		testOrder(mid, "ORDER_001", "100.00", domain.StatusCompleted),
		testOrder(mid, "ORDER_002", "50.00", domain.StatusPending),
		testOrder(mid, "ORDER_003", "25.00", domain.StatusCompleted),
	} {
		o := o
		require.NoError(t, repo.Insert(&o))
	}

	completed, err := repo.ListByStatus(domain.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 2)
	assert.Equal(t, "ORDER_001", completed[0].MerchantOrderID)
	assert.Equal(t, "ORDER_003", completed[1].MerchantOrderID)
}

func TestOrderStatusTotalsExactDecimal(t *testing.T) {
	db := testDB(t)
	mid := testMerchant(t, db, "MERCHANT_A")
	repo := NewOrderRepo(db)

	// 0.10 + 0.20 is the classic binary-float trap; TEXT storage plus
	// decimal summation must come out to exactly 0.30.
	for i, amount := range []string{"0.10", "0.20"} {
		o := testOrder(mid, "ORDER_00"+string(rune('1'+i)), amount, domain.StatusCompleted)
		require.NoError(t, repo.Insert(&o))
	}

	count, total, err := repo.StatusTotals(domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, total.Equal(decimal.RequireFromString("0.30")), "got %s", total)
}

func TestOrderBulkInsertSkipsDuplicates(t *testing.T) {
	db := testDB(t)
	mid := testMerchant(t, db, "MERCHANT_A")
	repo := NewOrderRepo(db)

	o := testOrder(mid, "ORDER_001", "100.00", domain.StatusCompleted)
	require.NoError(t, repo.Insert(&o))

	inserted, err := repo.BulkInsert([]domain.Order{
		testOrder(mid, "ORDER_001", "100.00", domain.StatusCompleted),
		testOrder(mid, "ORDER_002", "50.00", domain.StatusCompleted),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestOrderListFilter(t *testing.T) {
	db := testDB(t)
	ma := testMerchant(t, db, "MERCHANT_A")
	mb := testMerchant(t, db, "MERCHANT_B")
	repo := NewOrderRepo(db)

	for _, o := range []domain.Order{
		testOrder(ma, "ORDER_001", "100.00", domain.StatusCompleted),
		testOrder(ma, "ORDER_002", "50.00", domain.StatusPending),
		testOrder(mb, "ORDER_001", "75.00", domain.StatusCompleted),
	} {
		o := o
		require.NoError(t, repo.Insert(&o))
	}

	orders, total, err := repo.List(RecordFilter{MerchantID: ma, Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Equal(t, "ORDER_001", orders[0].MerchantOrderID)
}
