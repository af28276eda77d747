package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registry operations and the certification pipeline.
type Metrics struct {
	Operations          *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	CasesSubmitted      *prometheus.CounterVec
	CasesGraded         *prometheus.CounterVec
	CertificateLookups  *prometheus.CounterVec
}

// New registers the registry metrics with the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers against reg. Tests pass a fresh prometheus.NewRegistry().
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_registry_operations_total",
			Help: "Registry operations by name and outcome code",
		}, []string{"operation", "outcome"}),
		TransactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certify_registry_operation_duration_seconds",
			Help:    "Duration of registry operations including the ledger transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		CasesSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_cases_submitted_total",
			Help: "Certification cases submitted by scheme",
		}, []string{"scheme"}),
		CasesGraded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_cases_completed_total",
			Help: "Certification cases reaching a terminal state",
		}, []string{"outcome"}),
		CertificateLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certify_certificate_verifications_total",
			Help: "Public certificate verifications by result",
		}, []string{"found"}),
	}
}

// ObserveOperation records one call with its outcome ("ok" or an error code).
func (m *Metrics) ObserveOperation(op, outcome string, start time.Time) {
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.TransactionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCaseSubmitted(scheme string) {
	m.CasesSubmitted.WithLabelValues(scheme).Inc()
}

func (m *Metrics) IncrementCaseCompleted(outcome string) {
	m.CasesGraded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementCertificateLookup(found bool) {
	label := "false"
	if found {
		label = "true"
	}
	m.CertificateLookups.WithLabelValues(label).Inc()
}
