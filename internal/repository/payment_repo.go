package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/reconciler/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

const paymentColumns = "id, merchant_id, merchant_order_id, amount, currency, description, payment_date, status, created_at, updated_at"

// Insert stores a new payment and fills in its database id. Returns
// ErrDuplicate if the merchant already has a payment with this
// merchant_order_id.
func (r *PaymentRepo) Insert(p *domain.Payment) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	res, err := r.db.Exec(
		`INSERT INTO payments
		(merchant_id, merchant_order_id, amount, currency, description,
		 payment_date, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		p.MerchantID, p.MerchantOrderID, p.Amount.String(), p.Currency,
		nullableString(p.Description), p.PaymentDate.Format("2006-01-02"),
		string(p.Status), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment %s: %w", p.MerchantOrderID, ErrDuplicate)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

func (r *PaymentRepo) BulkInsert(payments []domain.Payment) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO payments
		(merchant_id, merchant_order_id, amount, currency, description,
		 payment_date, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for i := range payments {
		p := &payments[i]
		res, err := stmt.Exec(
			p.MerchantID, p.MerchantOrderID, p.Amount.String(), p.Currency,
			nullableString(p.Description), p.PaymentDate.Format("2006-01-02"),
			string(p.Status), now, now,
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

func (r *PaymentRepo) GetByMerchantOrderID(merchantID int64, merchantOrderID string) (*domain.Payment, error) {
	row := r.db.QueryRow(
		"SELECT "+paymentColumns+" FROM payments WHERE merchant_id = ? AND merchant_order_id = ?",
		merchantID, merchantOrderID,
	)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *PaymentRepo) List(f RecordFilter) ([]domain.Payment, int, error) {
	where, args := buildRecordWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM payments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	f.Page, f.Limit = normalizePage(f.Page, f.Limit)
	query := "SELECT " + paymentColumns + " FROM payments" + where + " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, total, rows.Err()
}

func (r *PaymentRepo) ListByStatus(status domain.Status) ([]domain.Payment, error) {
	rows, err := r.db.Query(
		"SELECT "+paymentColumns+" FROM payments WHERE status = ? ORDER BY id",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *PaymentRepo) StatusTotals(status domain.Status) (int, decimal.Decimal, error) {
	rows, err := r.db.Query("SELECT amount FROM payments WHERE status = ?", string(status))
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return sumAmounts(rows)
}

func (r *PaymentRepo) MerchantStatusTotals(status domain.Status) (map[int64]CountAmount, error) {
	rows, err := r.db.Query("SELECT merchant_id, amount FROM payments WHERE status = ?", string(status))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return sumAmountsByMerchant(rows)
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var amount, paymentDate, status, createdAt, updatedAt string
	var description sql.NullString

	err := row.Scan(
		&p.ID, &p.MerchantID, &p.MerchantOrderID, &amount, &p.Currency,
		&description, &paymentDate, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Status = domain.Status(status)
	if description.Valid {
		p.Description = description.String
	}
	p.PaymentDate, err = parseDate(paymentDate)
	if err != nil {
		return nil, fmt.Errorf("parse payment date %q: %w", paymentDate, err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}
