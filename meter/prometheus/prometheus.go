// Package prometheus provides a guard402.Meter backed by Prometheus metrics.
//
// All collectors are registered on the registerer passed to New, so callers
// control exposure (a private registry per guard, or the default one).
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/402guard/guard402"
)

// Meter counts guard decisions, outcomes and dollar spend.
type Meter struct {
	DecisionsTotal *prometheus.CounterVec
	DenialsTotal   *prometheus.CounterVec
	OutcomesTotal  *prometheus.CounterVec
	SpendUSDTotal  *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
}

var _ guard402.Meter = (*Meter)(nil)

// New creates a Meter and registers its collectors on reg.
func New(reg prometheus.Registerer) *Meter {
	m := &Meter{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard402_decisions_total",
			Help: "Policy checks by service, phase and verdict.",
		}, []string{"service", "phase", "allowed"}),

		DenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard402_denials_total",
			Help: "Denied policy checks by service and phase.",
		}, []string{"service", "phase"}),

		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard402_requests_total",
			Help: "Completed guarded requests by service and terminal phase.",
		}, []string{"service", "phase", "paid"}),

		SpendUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guard402_spend_usd_total",
			Help: "Dollars committed to the ledger by service.",
		}, []string{"service"}),

		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guard402_request_duration_seconds",
			Help:    "Guarded request duration by terminal phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
	}

	reg.MustRegister(m.DecisionsTotal, m.DenialsTotal, m.OutcomesTotal, m.SpendUSDTotal, m.Duration)
	return m
}

func (m *Meter) OnDecision(e guard402.DecisionEvent) {
	allowed := "false"
	if e.Allowed {
		allowed = "true"
	}
	m.DecisionsTotal.WithLabelValues(e.ServiceID, string(e.Phase), allowed).Inc()
	if !e.Allowed {
		m.DenialsTotal.WithLabelValues(e.ServiceID, string(e.Phase)).Inc()
	}
}

func (m *Meter) OnOutcome(e guard402.OutcomeEvent) {
	paid := "false"
	if e.Paid {
		paid = "true"
	}
	m.OutcomesTotal.WithLabelValues(e.ServiceID, string(e.Phase), paid).Inc()
	m.Duration.WithLabelValues(string(e.Phase)).Observe(e.Duration.Seconds())

	if e.Phase == guard402.PhaseDone && e.USDAmount > 0 {
		m.SpendUSDTotal.WithLabelValues(e.ServiceID).Add(e.USDAmount)
	}
}
