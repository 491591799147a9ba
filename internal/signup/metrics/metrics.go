package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the self sign-up workflow.
type Metrics struct {
	// Registrations by outcome: "pending", "rejected", "failed"
	Registrations *prometheus.CounterVec

	// Confirmations by outcome: "confirmed", "invalid_code", "expired_code", "failed"
	Confirmations *prometheus.CounterVec

	// Code reissues by outcome
	Resends *prometheus.CounterVec

	// Notification dispatch failures by channel
	NotificationFailures *prometheus.CounterVec

	OperationLatency *prometheus.HistogramVec

	Purged prometheus.Counter
}

// New registers the workflow metrics with reg. A nil reg leaves them
// unregistered, which tests rely on to build many engines.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_registrations_total",
			Help: "Self sign-up registrations by outcome",
		}, []string{"outcome"}),

		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_confirmations_total",
			Help: "Confirmation attempts by outcome",
		}, []string{"outcome"}),

		Resends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_code_resends_total",
			Help: "Confirmation code reissues by outcome",
		}, []string{"outcome"}),

		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signup_notification_failures_total",
			Help: "Failed confirmation code deliveries by channel",
		}, []string{"channel"}),

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signup_operation_duration_seconds",
			Help:    "Duration of workflow operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}), // operation: "register", "confirm", "resend", "purge"

		Purged: f.NewCounter(prometheus.CounterOpts{
			Name: "signup_registrations_purged_total",
			Help: "Finished or lapsed registrations removed by the purge worker",
		}),
	}
}

func (m *Metrics) IncRegistration(outcome string) {
	if m != nil {
		m.Registrations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncConfirmation(outcome string) {
	if m != nil {
		m.Confirmations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncResend(outcome string) {
	if m != nil {
		m.Resends.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncNotificationFailure(channel string) {
	if m != nil {
		m.NotificationFailures.WithLabelValues(channel).Inc()
	}
}

// ObserveOperation records how long a workflow operation took.
func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) AddPurged(n int) {
	if m != nil && n > 0 {
		m.Purged.Add(float64(n))
	}
}
