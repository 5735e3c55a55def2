package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics содержит метрики fulfillment-пайплайна.
type PipelineMetrics struct {
	// События внешних систем.
	eventsTotal     *prometheus.CounterVec
	duplicateEvents prometheus.Counter

	// Переходы статусов лотов.
	transitionsTotal        *prometheus.CounterVec
	invalidTransitionsTotal prometheus.Counter

	// Взаимодействие с поставщиком и возвраты.
	supplierOrdersTotal *prometheus.CounterVec
	refundsTotal        prometheus.Counter

	// Закупка и sweep.
	lotsSourcedTotal prometheus.Counter
	sweepStepsTotal  *prometheus.CounterVec

	dispatchDuration prometheus.Histogram
}

// NewPipelineMetrics создаёт новый экземпляр метрик пайплайна.
func NewPipelineMetrics() *PipelineMetrics {
	return newPipelineMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newPipelineMetricsWithRegisterer(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		eventsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dropship_events_total",
			Help: "Total number of inbound events grouped by source and result",
		}, []string{"source", "result"}),
		duplicateEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dropship_duplicate_events_total",
			Help: "Total number of events dropped by the idempotency ledger",
		}),
		transitionsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dropship_lot_transitions_total",
			Help: "Total number of lot status transitions grouped by target status",
		}, []string{"to"}),
		invalidTransitionsTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dropship_lot_invalid_transitions_total",
			Help: "Total number of rejected lot status transitions",
		}),
		supplierOrdersTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dropship_supplier_orders_total",
			Help: "Total number of supplier order placements grouped by result",
		}, []string{"result"}),
		refundsTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dropship_refunds_total",
			Help: "Total number of refunds issued",
		}),
		lotsSourcedTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dropship_lots_sourced_total",
			Help: "Total number of lots created by the sourcing orchestrator",
		}),
		sweepStepsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dropship_sweep_steps_total",
			Help: "Total number of sweep step executions grouped by step and result",
		}, []string{"step", "result"}),
		dispatchDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "dropship_event_dispatch_duration_seconds",
			Help:    "Duration of inbound event dispatch in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordEvent учитывает входящее событие с результатом обработки.
func (m *PipelineMetrics) RecordEvent(source, result string) {
	m.eventsTotal.WithLabelValues(source, result).Inc()
}

// RecordDuplicateEvent учитывает событие, отброшенное журналом идемпотентности.
func (m *PipelineMetrics) RecordDuplicateEvent() {
	m.duplicateEvents.Inc()
}

// RecordTransition учитывает успешный переход лота в статус to.
func (m *PipelineMetrics) RecordTransition(to string) {
	m.transitionsTotal.WithLabelValues(to).Inc()
}

// RecordInvalidTransition учитывает отклонённый переход.
func (m *PipelineMetrics) RecordInvalidTransition() {
	m.invalidTransitionsTotal.Inc()
}

// RecordSupplierOrder учитывает попытку размещения заказа у поставщика.
func (m *PipelineMetrics) RecordSupplierOrder(result string) {
	m.supplierOrdersTotal.WithLabelValues(result).Inc()
}

// RecordRefund учитывает выполненный возврат.
func (m *PipelineMetrics) RecordRefund() {
	m.refundsTotal.Inc()
}

// RecordLotsSourced учитывает созданные закупочным оркестратором лоты.
func (m *PipelineMetrics) RecordLotsSourced(n int) {
	m.lotsSourcedTotal.Add(float64(n))
}

// RecordSweepStep учитывает исход одного шага sweep.
func (m *PipelineMetrics) RecordSweepStep(step, result string) {
	m.sweepStepsTotal.WithLabelValues(step, result).Inc()
}

// ObserveDispatchDuration записывает длительность обработки события.
func (m *PipelineMetrics) ObserveDispatchDuration(d time.Duration) {
	m.dispatchDuration.Observe(d.Seconds())
}
