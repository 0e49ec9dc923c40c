package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts order lifecycle activity.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	checkouts   *prometheus.CounterVec
	created     prometheus.Counter
	refunds     *prometheus.CounterVec
	payouts     *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Applied order state transitions.",
		}, []string{"from", "to", "action"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Shop orders created by checkout.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refunds_settled_total",
			Help: "Refund settlement attempts by resulting status.",
		}, []string{"status"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_requests_total",
			Help: "Payout requests by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.transitions, m.checkouts, m.created, m.refunds, m.payouts)
	return m
}

func (m *OrderMetrics) IncTransition(from, to, action string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(action)).Inc()
}

// IncCheckout records a checkout outcome and, on success, the number of shop orders produced.
func (m *OrderMetrics) IncCheckout(outcome string, orders int) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
	if orders > 0 {
		m.created.Add(float64(orders))
	}
}

func (m *OrderMetrics) IncRefund(status string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *OrderMetrics) IncPayout(outcome string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}
