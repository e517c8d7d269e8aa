package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks credit movements by kind.
type LedgerMetrics struct {
	movements    *prometheus.CounterVec
	amount       *prometheus.CounterVec
	insufficient prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_movements_total",
		Help:      "Credit log entries appended, by kind.",
	}, []string{"kind"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_movement_amount_total",
		Help:      "Absolute credit units moved, by kind.",
	}, []string{"kind"})
	insufficient := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credit_hold_insufficient_total",
		Help:      "Holds rejected for insufficient balance.",
	})
	reg.MustRegister(movements, amount, insufficient)
	return &LedgerMetrics{movements: movements, amount: amount, insufficient: insufficient}
}

// ObserveMovement records one appended log entry.
func (m *LedgerMetrics) ObserveMovement(kind string, amount int64) {
	if m == nil || m.movements == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.movements.WithLabelValues(normalizeLabel(kind)).Inc()
	m.amount.WithLabelValues(normalizeLabel(kind)).Add(float64(amount))
}

// IncInsufficient counts a rejected hold.
func (m *LedgerMetrics) IncInsufficient() {
	if m == nil || m.insufficient == nil {
		return
	}
	m.insufficient.Inc()
}
