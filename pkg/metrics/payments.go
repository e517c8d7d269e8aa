package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks gateway confirmations, replays and webhook deliveries.
type PaymentMetrics struct {
	operations *prometheus.CounterVec
	replays    *prometheus.CounterVec
	webhooks   *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_operations_total",
		Help:      "Payment confirm/cancel attempts by outcome.",
	}, []string{"operation", "outcome"})
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_idempotent_replays_total",
		Help:      "Responses served from the idempotency cache.",
	}, []string{"operation"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_webhooks_total",
		Help:      "Gateway webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(operations, replays, webhooks)
	return &PaymentMetrics{operations: operations, replays: replays, webhooks: webhooks}
}

// IncOperation records a confirm or cancel outcome.
func (m *PaymentMetrics) IncOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncReplay records a cached response served verbatim.
func (m *PaymentMetrics) IncReplay(operation string) {
	if m == nil || m.replays == nil {
		return
	}
	m.replays.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncWebhook records a webhook delivery outcome.
func (m *PaymentMetrics) IncWebhook(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
