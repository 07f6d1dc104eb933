package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initOrderMetrics(cfg Config) {
	m.orderOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of order attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.ticketsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total number of tickets issued",
		},
	)

	m.registry.MustRegister(m.orderOutcomes)
	m.registry.MustRegister(m.ticketsIssued)
}

// RecordOrder records one order attempt outcome.
func (m *Manager) RecordOrder(outcome string) {
	if !m.enabled {
		return
	}
	m.orderOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTicketsIssued adds issued tickets to the running total.
func (m *Manager) RecordTicketsIssued(count int) {
	if !m.enabled {
		return
	}
	m.ticketsIssued.Add(float64(count))
}
