package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RegistrationsStarted prometheus.Counter
	ApprovalDecisions    *prometheus.CounterVec
	CredentialsSubmitted prometheus.Counter
	CredentialsIssued    prometheus.Counter
	AnchorBatches        *prometheus.CounterVec
	Verifications        *prometheus.CounterVec
	LedgerConfirmSeconds prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RegistrationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verify_registrations_started_total",
			Help: "Institution onboarding flows started",
		}),
		ApprovalDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_approval_decisions_total",
			Help: "Admin decisions on onboarding requests by outcome",
		}, []string{"outcome"}),
		CredentialsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verify_credentials_submitted_total",
			Help: "Credentials accepted into the issuance pipeline",
		}),
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verify_credentials_issued_total",
			Help: "Credentials finalized and marked issued",
		}),
		AnchorBatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_anchor_batches_total",
			Help: "Ledger anchor batch submissions by result",
		}, []string{"result"}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_verifications_total",
			Help: "Public verification requests by verdict",
		}, []string{"verdict"}),
		LedgerConfirmSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "verify_ledger_confirmation_seconds",
			Help:    "Time waiting for ledger transaction confirmation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}
