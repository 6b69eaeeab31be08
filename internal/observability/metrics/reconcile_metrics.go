package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	paymentdomain "github.com/lumeapp/agenda/internal/payment/domain"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReconcileReasonDeadlineExceeded   = "deadline_exceeded"
	ReconcileReasonGatewayUnavailable = "gateway_unavailable"
	ReconcileReasonDB                 = "db"
	ReconcileReasonUnknown            = "unknown"
)

// Config carries const labels stamped onto every series.
type Config struct {
	ServiceName string
	Environment string
}

// ReconcileMetrics captures reconciliation health signals.
type ReconcileMetrics struct {
	passes          *prometheus.CounterVec
	passErrors      *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	triggerRuns     *prometheus.CounterVec
	triggerDuration *prometheus.HistogramVec
	batchProcessed  *prometheus.CounterVec
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconciliation metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// ResetReconcileMetricsForTest resets the singleton for tests.
func ResetReconcileMetricsForTest() {
	reconcileMetricsOnce = sync.Once{}
	reconcileMetrics = nil
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "agenda"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	passes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agenda_reconcile_passes_total",
		Help:        "Reconcile passes by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	passErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agenda_reconcile_errors_total",
		Help:        "Reconcile pass errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "agenda_gateway_query_duration_seconds",
		Help:        "Gateway status query latency by provider.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"provider"})
	triggerRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agenda_trigger_runs_total",
		Help:        "Trigger runs by name.",
		ConstLabels: constLabels,
	}, []string{"trigger"})
	triggerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "agenda_trigger_duration_seconds",
		Help:        "Trigger run latency to keep confirmation lag within SLOs.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"trigger"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "agenda_trigger_batch_processed_total",
		Help:        "Bookings examined per trigger to gauge sweep throughput.",
		ConstLabels: constLabels,
	}, []string{"trigger"})

	registerer.MustRegister(
		passes,
		passErrors,
		gatewayLatency,
		triggerRuns,
		triggerDuration,
		batchProcessed,
	)

	return &ReconcileMetrics{
		passes:          passes,
		passErrors:      passErrors,
		gatewayLatency:  gatewayLatency,
		triggerRuns:     triggerRuns,
		triggerDuration: triggerDuration,
		batchProcessed:  batchProcessed,
	}
}

// IncPass increments the pass counter for an outcome.
func (m *ReconcileMetrics) IncPass(outcome string) {
	if m == nil || m.passes == nil {
		return
	}
	m.passes.WithLabelValues(outcome).Inc()
}

// IncPassError increments the error counter with classification.
func (m *ReconcileMetrics) IncPassError(err error) {
	if m == nil || m.passErrors == nil || err == nil {
		return
	}
	m.passErrors.WithLabelValues(classifyReconcileReason(err)).Inc()
}

// ObserveGatewayLatency records one status query round trip.
func (m *ReconcileMetrics) ObserveGatewayLatency(provider string, duration time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// IncTriggerRun increments the run counter for a trigger.
func (m *ReconcileMetrics) IncTriggerRun(trigger string) {
	if m == nil || m.triggerRuns == nil {
		return
	}
	m.triggerRuns.WithLabelValues(trigger).Inc()
}

// ObserveTriggerDuration records trigger run latency in seconds.
func (m *ReconcileMetrics) ObserveTriggerDuration(trigger string, duration time.Duration) {
	if m == nil || m.triggerDuration == nil {
		return
	}
	m.triggerDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// AddBatchProcessed increments the examined-booking counter by count.
func (m *ReconcileMetrics) AddBatchProcessed(trigger string, count int) {
	if m == nil || m.batchProcessed == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(trigger).Add(float64(count))
}

func classifyReconcileReason(err error) string {
	if err == nil {
		return ReconcileReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReconcileReasonDeadlineExceeded
	}
	if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		return ReconcileReasonGatewayUnavailable
	}
	if isDBError(err) {
		return ReconcileReasonDB
	}
	return ReconcileReasonUnknown
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	return errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}
