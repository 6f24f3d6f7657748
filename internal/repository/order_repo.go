package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/reconciler/internal/domain"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = "id, merchant_id, merchant_order_id, amount, currency, description, order_date, status, created_at, updated_at"

// Insert stores a new order and fills in its database id. Returns
// ErrDuplicate if the merchant already has an order with this
// merchant_order_id.
func (r *OrderRepo) Insert(o *domain.Order) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	res, err := r.db.Exec(
		`INSERT INTO orders
		(merchant_id, merchant_order_id, amount, currency, description,
		 order_date, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		o.MerchantID, o.MerchantOrderID, o.Amount.String(), o.Currency,
		nullableString(o.Description), o.OrderDate.Format("2006-01-02"),
		string(o.Status), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", o.MerchantOrderID, ErrDuplicate)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	o.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// BulkInsert inserts orders inside one transaction, skipping rows that
// collide with an existing (merchant_id, merchant_order_id). Returns the
// number of rows actually inserted.
func (r *OrderRepo) BulkInsert(orders []domain.Order) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO orders
		(merchant_id, merchant_order_id, amount, currency, description,
		 order_date, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for i := range orders {
		o := &orders[i]
		res, err := stmt.Exec(
			o.MerchantID, o.MerchantOrderID, o.Amount.String(), o.Currency,
			nullableString(o.Description), o.OrderDate.Format("2006-01-02"),
			string(o.Status), now, now,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetByMerchantOrderID looks an order up by merchant database id and
// merchant-scoped order id.
func (r *OrderRepo) GetByMerchantOrderID(merchantID int64, merchantOrderID string) (*domain.Order, error) {
	row := r.db.QueryRow(
		"SELECT "+orderColumns+" FROM orders WHERE merchant_id = ? AND merchant_order_id = ?",
		merchantID, merchantOrderID,
	)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

type RecordFilter struct {
	MerchantID int64
	Status     string
	Page       int
	Limit      int
}

func (r *OrderRepo) List(f RecordFilter) ([]domain.Order, int, error) {
	where, args := buildRecordWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	query := "SELECT " + orderColumns + " FROM orders" + where + " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, total, rows.Err()
}

// ListByStatus returns every order in the given status, ordered by id. This
// is the engine's snapshot loader.
func (r *OrderRepo) ListByStatus(status domain.Status) ([]domain.Order, error) {
	rows, err := r.db.Query(
		"SELECT "+orderColumns+" FROM orders WHERE status = ? ORDER BY id",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// StatusTotals sums orders in the given status. Summation happens in Go so
// exact decimal semantics survive; SQLite would coerce TEXT amounts to REAL.
func (r *OrderRepo) StatusTotals(status domain.Status) (int, decimal.Decimal, error) {
	rows, err := r.db.Query("SELECT amount FROM orders WHERE status = ?", string(status))
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return sumAmounts(rows)
}

// MerchantStatusTotals returns per-merchant count and summed amount for
// orders in the given status.
func (r *OrderRepo) MerchantStatusTotals(status domain.Status) (map[int64]CountAmount, error) {
	rows, err := r.db.Query("SELECT merchant_id, amount FROM orders WHERE status = ?", string(status))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return sumAmountsByMerchant(rows)
}

// --- helpers shared with PaymentRepo ---

// CountAmount pairs a record count with a summed amount.
type CountAmount struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

func buildRecordWhere(f RecordFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.MerchantID != 0 {
		clauses = append(clauses, "merchant_id = ?")
		args = append(args, f.MerchantID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func sumAmounts(rows *sql.Rows) (int, decimal.Decimal, error) {
	count, total := 0, decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return 0, decimal.Zero, fmt.Errorf("scan: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return 0, decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		count++
		total = total.Add(amount)
	}
	return count, total, rows.Err()
}

func sumAmountsByMerchant(rows *sql.Rows) (map[int64]CountAmount, error) {
	totals := make(map[int64]CountAmount)
	for rows.Next() {
		var merchantID int64
		var raw string
		if err := rows.Scan(&merchantID, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		t := totals[merchantID]
		t.Count++
		t.Amount = t.Amount.Add(amount)
		totals[merchantID] = t
	}
	return totals, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var amount, orderDate, status, createdAt, updatedAt string
	var description sql.NullString

	err := row.Scan(
		&o.ID, &o.MerchantID, &o.MerchantOrderID, &amount, &o.Currency,
		&description, &orderDate, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	o.Status = domain.Status(status)
	if description.Valid {
		o.Description = description.String
	}
	o.OrderDate, err = parseDate(orderDate)
	if err != nil {
		return nil, fmt.Errorf("parse order date %q: %w", orderDate, err)
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	o.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &o, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}
