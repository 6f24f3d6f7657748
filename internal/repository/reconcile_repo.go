package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/meridianpay/reconciler/internal/domain"
)

// ReconcileRepo persists the outcome of a reconciliation run. It is the
// storage collaborator behind the engine's all-or-nothing boundary.
type ReconcileRepo struct {
	db *sql.DB
}

func NewReconcileRepo(db *sql.DB) *ReconcileRepo {
	return &ReconcileRepo{db: db}
}

// ApplyTransitions applies every transition inside a single transaction.
// Each UPDATE is guarded by the expected old status, so a record that moved
// underneath the run fails the whole batch instead of being silently
// re-transitioned. Any failure rolls everything back.
func (r *ReconcileRepo) ApplyTransitions(transitions []domain.StatusTransition) error {
	if len(transitions) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, t := range transitions {
		var table string
		switch t.Entity {
		case domain.EntityOrder:
			table = "orders"
		case domain.EntityPayment:
			table = "payments"
		default:
			return fmt.Errorf("unknown entity kind %q", t.Entity)
		}

		res, err := tx.Exec(
			"UPDATE "+table+" SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			string(t.To), now, t.RecordID, string(t.From),
		)
		if err != nil {
			return fmt.Errorf("update %s %d: %w", t.Entity, t.RecordID, err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if ra == 0 {
			return fmt.Errorf("stale transition: %s %d is no longer %s", t.Entity, t.RecordID, t.From)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
