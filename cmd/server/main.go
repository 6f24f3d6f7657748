package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianpay/reconciler/internal/api"
	"github.com/meridianpay/reconciler/internal/domain"
	"github.com/meridianpay/reconciler/internal/ingestion"
	"github.com/meridianpay/reconciler/internal/reconcile"
	"github.com/meridianpay/reconciler/internal/repository"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "reconciler.db"
	}

	log.Printf("Initializing database at %s", dbPath)
	db, err := repository.InitDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	merchantRepo := repository.NewMerchantRepo(db)
	orderRepo := repository.NewOrderRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)
	reconRepo := repository.NewReconcileRepo(db)
	importRepo := repository.NewImportRepo(db)

	// Create services.
	engine := reconcile.NewEngine()
	reconSvc := reconcile.NewService(orderRepo, paymentRepo, reconRepo, engine)
	ingestionSvc := ingestion.NewService(merchantRepo, orderRepo, paymentRepo, importRepo, reconSvc)

	// Seed from testdata if the DB is empty.
	count, err := merchantRepo.Count()
	if err != nil {
		log.Fatalf("Failed to count merchants: %v", err)
	}
	if count == 0 {
		log.Println("Database is empty, seeding from testdata...")
		if err := seed(merchantRepo, orderRepo, paymentRepo); err != nil {
			log.Printf("WARNING: Failed to seed: %v", err)
		}
	} else {
		log.Printf("Database already has %d merchants, skipping seed", count)
	}

	router := api.NewRouter(merchantRepo, orderRepo, paymentRepo, reconSvc, ingestionSvc)

	log.Printf("Meridian Payment Reconciler")
	log.Printf("Listening on http://localhost:%s", port)
	log.Printf("API base: http://localhost:%s/api/v1", port)
	log.Printf("")
	log.Printf("Endpoints:")
	log.Printf("  POST   /api/v1/merchants")
	log.Printf("  POST   /api/v1/orders")
	log.Printf("  POST   /api/v1/payments")
	log.Printf("  POST   /api/v1/reconciliation")
	log.Printf("  GET    /api/v1/reconciliation/report")
	log.Printf("  GET    /api/v1/discrepancies")
	log.Printf("  POST   /api/v1/imports")
	log.Printf("  GET    /metrics")

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// seedRecord uses business merchant ids; seed resolves them against the
// merchants inserted earlier in the same file.
type seedRecord struct {
	MerchantID      string          `json:"merchant_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Date            string          `json:"date"`
	Status          domain.Status   `json:"status"`
	Description     string          `json:"description"`
}

type seedFile struct {
	Merchants []struct {
		MerchantID string `json:"merchant_id"`
		Name       string `json:"merchant_name"`
	} `json:"merchants"`
	Orders   []seedRecord `json:"orders"`
	Payments []seedRecord `json:"payments"`
}

func seed(
	merchantRepo *repository.MerchantRepo,
	orderRepo *repository.OrderRepo,
	paymentRepo *repository.PaymentRepo,
) error {
	data, err := loadSeedFile()
	if err != nil {
		return err
	}

	var sf seedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("unmarshal seed: %w", err)
	}

	ids := make(map[string]int64, len(sf.Merchants))
	for _, sm := range sf.Merchants {
		m := &domain.Merchant{MerchantID: sm.MerchantID, Name: sm.Name}
		if err := merchantRepo.Insert(m); err != nil {
			return fmt.Errorf("seed merchant %s: %w", sm.MerchantID, err)
		}
		ids[sm.MerchantID] = m.ID
	}

	var orders []domain.Order
	for _, rec := range sf.Orders {
		date, err := time.Parse("2006-01-02", rec.Date)
		if err != nil {
			return fmt.Errorf("seed order %s date: %w", rec.MerchantOrderID, err)
		}
		mid, ok := ids[rec.MerchantID]
		if !ok {
			return fmt.Errorf("seed order %s: unknown merchant %s", rec.MerchantOrderID, rec.MerchantID)
		}
		orders = append(orders, domain.Order{
			MerchantID:      mid,
			MerchantOrderID: rec.MerchantOrderID,
			Amount:          rec.Amount,
			Currency:        rec.Currency,
			Description:     rec.Description,
			OrderDate:       date,
			Status:          rec.Status,
		})
	}

	var payments []domain.Payment
	for _, rec := range sf.Payments {
		date, err := time.Parse("2006-01-02", rec.Date)
		if err != nil {
			return fmt.Errorf("seed payment %s date: %w", rec.MerchantOrderID, err)
		}
		mid, ok := ids[rec.MerchantID]
		if !ok {
			return fmt.Errorf("seed payment %s: unknown merchant %s", rec.MerchantOrderID, rec.MerchantID)
		}
		payments = append(payments, domain.Payment{
			MerchantID:      mid,
			MerchantOrderID: rec.MerchantOrderID,
			Amount:          rec.Amount,
			Currency:        rec.Currency,
			Description:     rec.Description,
			PaymentDate:     date,
			Status:          rec.Status,
		})
	}

	no, err := orderRepo.BulkInsert(orders)
	if err != nil {
		return fmt.Errorf("seed orders: %w", err)
	}
	np, err := paymentRepo.BulkInsert(payments)
	if err != nil {
		return fmt.Errorf("seed payments: %w", err)
	}

	log.Printf("Seeded %d merchants, %d orders, %d payments", len(sf.Merchants), no, np)
	return nil
}

func loadSeedFile() ([]byte, error) {
	candidates := []string{
		"testdata/seed.json",
		filepath.Join(".", "testdata", "seed.json"),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "seed.json"),
			filepath.Join(dir, "..", "..", "testdata", "seed.json"),
		)
	}

	var loadErr error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			log.Printf("Loaded seed data from %s", path)
			return data, nil
		}
		loadErr = err
	}
	return nil, fmt.Errorf("could not find seed.json in any candidate path: %w", loadErr)
}
