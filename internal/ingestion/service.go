package ingestion

import (
	"crypto/sha256"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/reconciler/internal/domain"
	"github.com/meridianpay/reconciler/internal/reconcile"
	"github.com/meridianpay/reconciler/internal/repository"
)

// ImportResult is returned from a successful bulk import.
type ImportResult struct {
	ImportID          string `json:"import_id"`
	RecordsImported   int    `json:"records_imported"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	MatchedAfter      int    `json:"matched_after_import"`
}

// Service handles bulk CSV import of orders and payments.
type Service struct {
	merchants *repository.MerchantRepo
	orders    *repository.OrderRepo
	payments  *repository.PaymentRepo
	imports   *repository.ImportRepo
	reconSvc  *reconcile.Service
}

func NewService(
	merchants *repository.MerchantRepo,
	orders *repository.OrderRepo,
	payments *repository.PaymentRepo,
	imports *repository.ImportRepo,
	reconSvc *reconcile.Service,
) *Service {
	return &Service{
		merchants: merchants,
		orders:    orders,
		payments:  payments,
		imports:   imports,
		reconSvc:  reconSvc,
	}
}

// Import parses a CSV file of the given kind ("orders" or "payments"),
// stores the records, and triggers a reconciliation pass. Re-submitting the
// same file content is a no-op, detected by content hash.
func (s *Service) Import(data []byte, kind string) (*ImportResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.imports.ExistsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		return &ImportResult{ImportID: "already-ingested"}, nil
	}

	var imported, skipped int
	switch kind {
	case "orders":
		imported, skipped, err = s.importOrders(data)
	case "payments":
		imported, skipped, err = s.importPayments(data)
	default:
		return nil, fmt.Errorf("unsupported import kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", kind, err)
	}

	importID := uuid.NewString()
	if err := s.imports.Insert(&repository.ImportRecord{
		ID:          importID,
		Kind:        kind,
		FileHash:    hash,
		RecordCount: imported,
		IngestedAt:  time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}

	log.Printf("[ingestion] Imported %s file %s: %d records (%d duplicates skipped)",
		kind, importID, imported, skipped)

	// Run reconciliation after import. A failing run does not fail the
	// import; the records are persisted either way.
	matched := 0
	if result, err := s.reconSvc.Run(); err != nil {
		log.Printf("[ingestion] WARNING: reconciliation failed: %v", err)
	} else {
		matched = result.Report.Summary.MatchedCount
	}

	return &ImportResult{
		ImportID:          importID,
		RecordsImported:   imported,
		DuplicatesSkipped: skipped,
		MatchedAfter:      matched,
	}, nil
}

func (s *Service) importOrders(data []byte) (int, int, error) {
	rows, err := ParseOrdersCSV(data)
	if err != nil {
		return 0, 0, err
	}

	resolve := s.merchantResolver()
	orders := make([]domain.Order, 0, len(rows))
	for i, row := range rows {
		merchantID, err := resolve(row.MerchantID)
		if err != nil {
			return 0, 0, fmt.Errorf("line %d: %w", i+2, err)
		}
		orders = append(orders, domain.Order{
			MerchantID:      merchantID,
			MerchantOrderID: row.MerchantOrderID,
			Amount:          row.Amount,
			Currency:        row.Currency,
			Description:     row.Description,
			OrderDate:       row.OrderDate,
			Status:          row.Status,
		})
	}

	inserted, err := s.orders.BulkInsert(orders)
	if err != nil {
		return 0, 0, err
	}
	return inserted, len(orders) - inserted, nil
}

func (s *Service) importPayments(data []byte) (int, int, error) {
	rows, err := ParsePaymentsCSV(data)
	if err != nil {
		return 0, 0, err
	}

	resolve := s.merchantResolver()
	payments := make([]domain.Payment, 0, len(rows))
	for i, row := range rows {
		merchantID, err := resolve(row.MerchantID)
		if err != nil {
			return 0, 0, fmt.Errorf("line %d: %w", i+2, err)
		}
		payments = append(payments, domain.Payment{
			MerchantID:      merchantID,
			MerchantOrderID: row.MerchantOrderID,
			Amount:          row.Amount,
			Currency:        row.Currency,
			Description:     row.Description,
			PaymentDate:     row.PaymentDate,
			Status:          row.Status,
		})
	}

	inserted, err := s.payments.BulkInsert(payments)
	if err != nil {
		return 0, 0, err
	}
	return inserted, len(payments) - inserted, nil
}

// merchantResolver maps business merchant ids to database ids, caching
// lookups for the duration of one import.
func (s *Service) merchantResolver() func(string) (int64, error) {
	cache := make(map[string]int64)
	return func(businessID string) (int64, error) {
		if id, ok := cache[businessID]; ok {
			return id, nil
		}
		m, err := s.merchants.GetByMerchantID(businessID)
		if err != nil {
			return 0, fmt.Errorf("merchant %q: %w", businessID, err)
		}
		cache[businessID] = m.ID
		return m.ID, nil
	}
}
