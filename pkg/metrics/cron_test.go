package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	end := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	m.ObserveJob("negotiation-sweep", 250*time.Millisecond, end, nil)
	m.ObserveJob("negotiation-sweep", time.Second, end, errors.New("db down"))
	m.IncCycle(CycleRan)
	m.IncCycle(CycleSkipped)
	m.IncCycle(CycleSkipped)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("negotiation-sweep", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("negotiation-sweep", "failure")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("negotiation-sweep")); got != float64(end.Unix()) {
		t.Fatalf("unexpected last success %v", got)
	}
	if got := testutil.ToFloat64(m.cycles.WithLabelValues(CycleSkipped)); got != 2 {
		t.Fatalf("expected 2 skipped cycles, got %v", got)
	}

	expected := `
# HELP rfqmarket_cron_cycles_total Scheduler ticks by result.
# TYPE rfqmarket_cron_cycles_total counter
rfqmarket_cron_cycles_total{result="ran"} 1
rfqmarket_cron_cycles_total{result="skipped"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "rfqmarket_cron_cycles_total"); err != nil {
		t.Fatalf("cycles exposition: %v", err)
	}
}

func TestLedgerMetricsCountsAbsoluteAmounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.ObserveMovement("use", -30000)
	m.ObserveMovement("use", -1000)
	m.IncInsufficient()

	expected := `
# HELP rfqmarket_credit_movement_amount_total Absolute credit units moved, by kind.
# TYPE rfqmarket_credit_movement_amount_total counter
rfqmarket_credit_movement_amount_total{kind="use"} 31000
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "rfqmarket_credit_movement_amount_total"); err != nil {
		t.Fatalf("amount exposition: %v", err)
	}
	if got := testutil.CollectAndCount(reg, "rfqmarket_credit_movements_total"); got != 1 {
		t.Fatalf("expected one movement series, got %d", got)
	}
}

func TestRecordersNilSafe(t *testing.T) {
	var payments *PaymentMetrics
	payments.IncOperation("confirm", "ok")
	payments.IncReplay("confirm")
	payments.IncWebhook("PAYMENT_COMPLETED", "ok")

	var sweep *SweepMetrics
	sweep.Observe(1, 100, 0)

	var cron *CronJobMetrics
	cron.ObserveJob("x", time.Second, time.Now(), nil)
	cron.IncCycle(CycleRan)

	NewLedgerMetrics(nil).ObserveMovement("charge", 10)
	NewCronJobMetrics(nil).IncCycle(CycleLockLost)
}

func TestPaymentMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.IncWebhook("", "ignored")

	if got := testutil.ToFloat64(m.webhooks.WithLabelValues("unknown", "ignored")); got != 1 {
		t.Fatalf("expected 1 webhook, got %v", got)
	}
}
