package leave

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the leave core. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Request admissions by outcome (admitted, or the error kind)
	Admissions *prometheus.CounterVec

	// Ledger postings by transaction type
	Postings *prometheus.CounterVec

	PolicyActivations prometheus.Counter
	PolicyRetirements *prometheus.CounterVec // reason: replaced, explicit, expired

	EncashmentsPaid prometheus.Counter

	// Store transaction duration by action and outcome
	TxDuration *prometheus.HistogramVec
}

// NewMetrics registers the leave metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Admissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_request_admissions_total",
			Help: "Leave request admission attempts by outcome",
		}, []string{"outcome"}),

		Postings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_ledger_postings_total",
			Help: "Transactions posted to leave balances by type",
		}, []string{"type"}),

		PolicyActivations: f.NewCounter(prometheus.CounterOpts{
			Name: "leave_policy_activations_total",
			Help: "Policies moved from DRAFT to ACTIVE",
		}),

		PolicyRetirements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_policy_retirements_total",
			Help: "Policies moved to RETIRED by reason",
		}, []string{"reason"}),

		EncashmentsPaid: f.NewCounter(prometheus.CounterOpts{
			Name: "leave_encashments_paid_total",
			Help: "Encashments settled by payroll",
		}),

		TxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leave_store_transaction_duration_seconds",
			Help:    "Duration of store transactions by action and outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"action", "outcome"}),
	}
}

func (m *Metrics) IncrementAdmission(outcome string) {
	if m != nil {
		m.Admissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementPosting(t TransactionType) {
	if m != nil {
		m.Postings.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) IncrementActivation() {
	if m != nil {
		m.PolicyActivations.Inc()
	}
}

func (m *Metrics) IncrementRetirement(reason string) {
	if m != nil {
		m.PolicyRetirements.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementEncashmentPaid() {
	if m != nil {
		m.EncashmentsPaid.Inc()
	}
}

// ObserveTx records how long a store transaction took.
func (m *Metrics) ObserveTx(action, outcome string, d time.Duration) {
	if m != nil {
		m.TxDuration.WithLabelValues(action, outcome).Observe(d.Seconds())
	}
}
