package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ingestion pipeline.
type Metrics struct {
	// Submissions by outcome: created, duplicate, invalid, in_progress, failed
	Submissions *prometheus.CounterVec

	// Stage latency: validate, guard, structured_write, primary, secondary, credit_note
	StageDuration *prometheus.HistogramVec

	// Swallowed storage failures by tier (primary, secondary) and file kind
	StorageFailures *prometheus.CounterVec

	SecondaryBreakerOpen prometheus.Gauge

	CreditNoteFailures prometheus.Counter
}

// New registers the pipeline metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the pipeline metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicevault_submissions_total",
			Help: "Invoice submissions by outcome",
		}, []string{"outcome"}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoicevault_stage_duration_seconds",
			Help:    "Duration of each ingestion pipeline stage",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),

		StorageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "invoicevault_storage_failures_total",
			Help: "Artifact persistence failures that were logged and swallowed",
		}, []string{"tier", "kind"}),

		SecondaryBreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "invoicevault_secondary_breaker_open",
			Help: "1 while the secondary storage circuit breaker is open",
		}),

		CreditNoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "invoicevault_credit_note_failures_total",
			Help: "Credit-note sub-pipeline failures isolated from the parent invoice",
		}),
	}
}

func (m *Metrics) IncrementSubmission(outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementStorageFailure(tier, kind string) {
	if m != nil {
		m.StorageFailures.WithLabelValues(tier, kind).Inc()
	}
}

func (m *Metrics) SetSecondaryBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.SecondaryBreakerOpen.Set(1)
		return
	}
	m.SecondaryBreakerOpen.Set(0)
}

func (m *Metrics) IncrementCreditNoteFailure() {
	if m != nil {
		m.CreditNoteFailures.Inc()
	}
}
