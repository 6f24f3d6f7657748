package reconcile

import (
	"fmt"
	"log"
	"time"

	"github.com/meridianpay/reconciler/internal/domain"
	"github.com/meridianpay/reconciler/internal/metrics"
	"github.com/meridianpay/reconciler/internal/repository"
)

// Service wires the pure engine to the storage collaborator: it loads the
// completed snapshot, runs one pass, and persists the resulting transitions.
type Service struct {
	orders   *repository.OrderRepo
	payments *repository.PaymentRepo
	store    *repository.ReconcileRepo
	engine   *Engine
}

func NewService(
	orders *repository.OrderRepo,
	payments *repository.PaymentRepo,
	store *repository.ReconcileRepo,
	engine *Engine,
) *Service {
	return &Service{
		orders:   orders,
		payments: payments,
		store:    store,
		engine:   engine,
	}
}

// Run executes one reconciliation pass and applies its transitions. A
// storage failure propagates unmodified and nothing is applied.
func (s *Service) Run() (*Result, error) {
	snapshotOrders, err := s.orders.ListByStatus(domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("load completed orders: %w", err)
	}
	snapshotPayments, err := s.payments.ListByStatus(domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("load completed payments: %w", err)
	}

	log.Printf("[reconcile] Run over %d completed orders, %d completed payments",
		len(snapshotOrders), len(snapshotPayments))

	result := s.engine.Reconcile(snapshotOrders, snapshotPayments, time.Now().UTC())

	if err := s.store.ApplyTransitions(result.Transitions); err != nil {
		return nil, fmt.Errorf("apply transitions: %w", err)
	}

	m := metrics.Default()
	m.Runs.Inc()
	m.Matched.Add(float64(result.Report.Summary.MatchedCount))
	for reason, stat := range result.Report.Summary.ByReason {
		m.Discrepancies.WithLabelValues(string(reason)).Add(float64(stat.Count))
	}

	log.Printf("[reconcile] Results: matched=%d, discrepancies=%d, transitions=%d",
		result.Report.Summary.MatchedCount,
		len(result.Report.Discrepancies),
		len(result.Transitions))

	return &result, nil
}

// Preview runs the engine over the current completed snapshot without
// applying any transitions. Used to list discrepancies without settling
// anything.
func (s *Service) Preview() (*domain.Report, error) {
	snapshotOrders, err := s.orders.ListByStatus(domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("load completed orders: %w", err)
	}
	snapshotPayments, err := s.payments.ListByStatus(domain.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("load completed payments: %w", err)
	}

	result := s.engine.Reconcile(snapshotOrders, snapshotPayments, time.Now().UTC())
	return &result.Report, nil
}
