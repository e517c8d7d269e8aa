package metrics

import "github.com/prometheus/client_golang/prometheus"

// SweepMetrics records the outcome of negotiation expiration sweeps.
type SweepMetrics struct {
	expired  prometheus.Counter
	refunded prometheus.Counter
	failures prometheus.Counter
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "negotiations_expired_total",
		Help:      "Chat rooms expired by the sweeper.",
	})
	refunded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "negotiation_refunded_credit_total",
		Help:      "Credit units refunded by expiration sweeps.",
	})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "negotiation_expire_failures_total",
		Help:      "Chat rooms the sweeper failed to expire.",
	})
	reg.MustRegister(expired, refunded, failures)
	return &SweepMetrics{expired: expired, refunded: refunded, failures: failures}
}

// Observe records one sweep summary.
func (m *SweepMetrics) Observe(processed int, refunded int64, failed int) {
	if m == nil || m.expired == nil {
		return
	}
	m.expired.Add(float64(processed))
	m.refunded.Add(float64(refunded))
	m.failures.Add(float64(failed))
}
