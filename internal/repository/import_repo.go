package repository

import (
	"database/sql"
	"fmt"
	"time"
)

// ImportRecord tracks one ingested bulk file for idempotency.
type ImportRecord struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	FileHash    string    `json:"file_hash"`
	RecordCount int       `json:"record_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

type ImportRepo struct {
	db *sql.DB
}

func NewImportRepo(db *sql.DB) *ImportRepo {
	return &ImportRepo{db: db}
}

// ExistsByHash reports whether a file with this content hash was already
// ingested.
func (r *ImportRepo) ExistsByHash(hash string) (bool, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM imports WHERE file_hash = ?", hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query: %w", err)
	}
	return count > 0, nil
}

func (r *ImportRepo) Insert(rec *ImportRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO imports (id, kind, file_hash, record_count, ingested_at) VALUES (?,?,?,?,?)`,
		rec.ID, rec.Kind, rec.FileHash, rec.RecordCount, rec.IngestedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert import: %w", err)
	}
	return nil
}
