package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the reconciliation counters exported on /metrics.
type Set struct {
	Runs          prometheus.Counter
	Matched       prometheus.Counter
	Discrepancies *prometheus.CounterVec
}

var (
	once     sync.Once
	registry *Set
)

// Default returns the process-wide metric set, registering it on first use.
func Default() *Set {
	once.Do(func() {
		registry = &Set{
			Runs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "reconciler",
				Subsystem: "engine",
				Name:      "runs_total",
				Help:      "Total reconciliation passes executed.",
			}),
			Matched: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "reconciler",
				Subsystem: "engine",
				Name:      "matched_pairs_total",
				Help:      "Total order/payment pairs transitioned to reconciled.",
			}),
			Discrepancies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "reconciler",
				Subsystem: "engine",
				Name:      "discrepancies_total",
				Help:      "Total discrepancies reported, labelled by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			registry.Runs,
			registry.Matched,
			registry.Discrepancies,
		)
	})
	return registry
}
