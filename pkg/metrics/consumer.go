package metrics

import "github.com/prometheus/client_golang/prometheus"

// Consumer message outcomes.
const (
	OutcomeHandled   = "handled"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeInvalid   = "invalid"
	OutcomeRetry     = "retry"
)

// ConsumerMetrics counts Pub/Sub deliveries per consumer and outcome.
type ConsumerMetrics struct {
	consumer string
	messages *prometheus.CounterVec
}

// NewConsumerMetrics registers pubsub_messages_total for the named consumer.
func NewConsumerMetrics(reg prometheus.Registerer, consumer string) *ConsumerMetrics {
	if reg == nil {
		return &ConsumerMetrics{consumer: consumer}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pubsub_messages_total",
		Help:        "Pub/Sub messages processed by outcome.",
		ConstLabels: prometheus.Labels{"consumer": normalizeLabel(consumer)},
	}, []string{"event_type", "outcome"})
	reg.MustRegister(messages)
	return &ConsumerMetrics{consumer: consumer, messages: messages}
}

// Observe counts one delivery.
func (c *ConsumerMetrics) Observe(eventType, outcome string) {
	if c == nil || c.messages == nil {
		return
	}
	c.messages.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
