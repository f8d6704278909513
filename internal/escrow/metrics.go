package escrow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts engine operations and their failures per scenario.
type Metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_operations_total",
			Help: "Completed escrow engine operations by scenario.",
		}, []string{"operation"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_operation_failures_total",
			Help: "Failed escrow engine operations by scenario.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.failures.WithLabelValues(operation).Inc()
		return
	}
	m.operations.WithLabelValues(operation).Inc()
}
