package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate")
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	// Amounts are stored as TEXT: decimal strings survive the round-trip
	// exactly, REAL columns would not.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS merchants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			merchant_id TEXT UNIQUE NOT NULL,
			merchant_name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_merchants_merchant_id ON merchants(merchant_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			merchant_id INTEGER NOT NULL,
			merchant_order_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			description TEXT,
			order_date DATE NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (merchant_id) REFERENCES merchants(id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_merchant_order ON orders(merchant_id, merchant_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			merchant_id INTEGER NOT NULL,
			merchant_order_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			description TEXT,
			payment_date DATE NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (merchant_id) REFERENCES merchants(id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_merchant_order ON payments(merchant_id, merchant_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,

		`CREATE TABLE IF NOT EXISTS imports (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			ingested_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
