package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish outcomes used as the "outcome" label.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

type publishMetrics struct {
	messages *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var defaultPublishMetrics = newPublishMetrics(prometheus.DefaultRegisterer)

func newPublishMetrics(reg prometheus.Registerer) *publishMetrics {
	f := promauto.With(reg)
	return &publishMetrics{
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Kafka publish attempts by topic, event type and outcome.",
		}, []string{"topic", "event_type", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Time spent writing one message to the brokers.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"topic", "outcome"}),
	}
}

func (m *publishMetrics) observe(topic, eventType string, elapsed time.Duration, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.messages.WithLabelValues(topic, eventType, outcome).Inc()
	m.latency.WithLabelValues(topic, outcome).Observe(elapsed.Seconds())
}
