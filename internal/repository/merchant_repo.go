package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/meridianpay/reconciler/internal/domain"
)

type MerchantRepo struct {
	db *sql.DB
}

func NewMerchantRepo(db *sql.DB) *MerchantRepo {
	return &MerchantRepo{db: db}
}

// Insert stores a new merchant and fills in its database id. Returns
// ErrDuplicate if the business merchant_id is already taken.
func (r *MerchantRepo) Insert(m *domain.Merchant) error {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	res, err := r.db.Exec(
		`INSERT INTO merchants (merchant_id, merchant_name, created_at, updated_at)
		VALUES (?,?,?,?)`,
		m.MerchantID, m.Name, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("merchant %s: %w", m.MerchantID, ErrDuplicate)
		}
		return fmt.Errorf("insert merchant: %w", err)
	}
	m.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// GetByMerchantID looks a merchant up by its business identifier.
func (r *MerchantRepo) GetByMerchantID(merchantID string) (*domain.Merchant, error) {
	row := r.db.QueryRow(
		"SELECT id, merchant_id, merchant_name, created_at, updated_at FROM merchants WHERE merchant_id = ?",
		merchantID,
	)
	return scanMerchant(row)
}

func (r *MerchantRepo) List(page, limit int) ([]domain.Merchant, int, error) {
	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM merchants").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	page, limit = normalizePage(page, limit)
	rows, err := r.db.Query(
		"SELECT id, merchant_id, merchant_name, created_at, updated_at FROM merchants ORDER BY id LIMIT ? OFFSET ?",
		limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var merchants []domain.Merchant
	for rows.Next() {
		var m domain.Merchant
		var createdAt, updatedAt string
		if err := rows.Scan(&m.ID, &m.MerchantID, &m.Name, &createdAt, &updatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		merchants = append(merchants, m)
	}
	return merchants, total, rows.Err()
}

func (r *MerchantRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM merchants").Scan(&count)
	return count, err
}

func scanMerchant(row *sql.Row) (*domain.Merchant, error) {
	var m domain.Merchant
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.MerchantID, &m.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &m, nil
}

func normalizePage(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	return page, limit
}
