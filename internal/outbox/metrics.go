package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbox delivery.
type Metrics struct {
	Published      prometheus.Counter
	PublishFailure prometheus.Counter
}

// NewMetrics registers the outbox metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "invoicevault_outbox_published_total",
			Help: "Outbox messages acknowledged by the broker",
		}),
		PublishFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "invoicevault_outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		}),
	}
}

func (m *Metrics) addPublished(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) incFailure() {
	if m != nil {
		m.PublishFailure.Inc()
	}
}
