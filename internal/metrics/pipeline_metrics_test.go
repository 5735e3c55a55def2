package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) *PipelineMetrics {
	t.Helper()
	return newPipelineMetricsWithRegisterer(prometheus.NewRegistry())
}

func TestNewPipelineMetrics(t *testing.T) {
	metrics := newTestMetrics(t)

	if metrics == nil {
		t.Fatal("newPipelineMetricsWithRegisterer should not return nil")
	}

	if metrics.eventsTotal == nil {
		t.Error("eventsTotal counter vec should not be nil")
	}
	if metrics.duplicateEvents == nil {
		t.Error("duplicateEvents counter should not be nil")
	}
	if metrics.transitionsTotal == nil {
		t.Error("transitionsTotal counter vec should not be nil")
	}
	if metrics.invalidTransitionsTotal == nil {
		t.Error("invalidTransitionsTotal counter should not be nil")
	}
	if metrics.supplierOrdersTotal == nil {
		t.Error("supplierOrdersTotal counter vec should not be nil")
	}
	if metrics.refundsTotal == nil {
		t.Error("refundsTotal counter should not be nil")
	}
	if metrics.lotsSourcedTotal == nil {
		t.Error("lotsSourcedTotal counter should not be nil")
	}
	if metrics.sweepStepsTotal == nil {
		t.Error("sweepStepsTotal counter vec should not be nil")
	}
	if metrics.dispatchDuration == nil {
		t.Error("dispatchDuration histogram should not be nil")
	}
}

func TestRecordEvent(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.RecordEvent("payment", "ok")
	metrics.RecordEvent("payment", "ok")
	metrics.RecordEvent("supplier", "error")

	if got := testutil.ToFloat64(metrics.eventsTotal.WithLabelValues("payment", "ok")); got != 2.0 {
		t.Errorf("expected 2 payment/ok events, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.eventsTotal.WithLabelValues("supplier", "error")); got != 1.0 {
		t.Errorf("expected 1 supplier/error event, got %f", got)
	}
}

func TestRecordDuplicateEvent(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.RecordDuplicateEvent()
	metrics.RecordDuplicateEvent()
	metrics.RecordDuplicateEvent()

	if got := testutil.ToFloat64(metrics.duplicateEvents); got != 3.0 {
		t.Errorf("expected 3 duplicate events, got %f", got)
	}
}

func TestRecordTransitions(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.RecordTransition("PAID")
	metrics.RecordTransition("PAID")
	metrics.RecordTransition("SHIPPED")
	metrics.RecordInvalidTransition()

	if got := testutil.ToFloat64(metrics.transitionsTotal.WithLabelValues("PAID")); got != 2.0 {
		t.Errorf("expected 2 transitions to PAID, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.transitionsTotal.WithLabelValues("SHIPPED")); got != 1.0 {
		t.Errorf("expected 1 transition to SHIPPED, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.invalidTransitionsTotal); got != 1.0 {
		t.Errorf("expected 1 invalid transition, got %f", got)
	}
}

func TestRecordSupplierOrderAndRefund(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.RecordSupplierOrder("ok")
	metrics.RecordSupplierOrder("out_of_stock")
	metrics.RecordRefund()

	if got := testutil.ToFloat64(metrics.supplierOrdersTotal.WithLabelValues("ok")); got != 1.0 {
		t.Errorf("expected 1 ok supplier order, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.supplierOrdersTotal.WithLabelValues("out_of_stock")); got != 1.0 {
		t.Errorf("expected 1 out_of_stock supplier order, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.refundsTotal); got != 1.0 {
		t.Errorf("expected 1 refund, got %f", got)
	}
}

func TestRecordLotsSourced(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.RecordLotsSourced(5)
	metrics.RecordLotsSourced(3)

	if got := testutil.ToFloat64(metrics.lotsSourcedTotal); got != 8.0 {
		t.Errorf("expected 8 sourced lots, got %f", got)
	}
}

func TestRecordSweepStep(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.RecordSweepStep("poll", "ok")
	metrics.RecordSweepStep("refunds", "error")

	if got := testutil.ToFloat64(metrics.sweepStepsTotal.WithLabelValues("poll", "ok")); got != 1.0 {
		t.Errorf("expected 1 poll/ok step, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.sweepStepsTotal.WithLabelValues("refunds", "error")); got != 1.0 {
		t.Errorf("expected 1 refunds/error step, got %f", got)
	}
}

func TestObserveDispatchDuration(t *testing.T) {
	metrics := newTestMetrics(t)

	metrics.ObserveDispatchDuration(10 * time.Millisecond)
	metrics.ObserveDispatchDuration(50 * time.Millisecond)

	if got := testutil.CollectAndCount(metrics.dispatchDuration); got != 1 {
		t.Errorf("expected 1 histogram series, got %d", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()

	first := newPipelineMetricsWithRegisterer(registry)
	second := newPipelineMetricsWithRegisterer(registry)

	first.RecordDuplicateEvent()
	second.RecordDuplicateEvent()

	if got := testutil.ToFloat64(first.duplicateEvents); got != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", got)
	}
}
