// Package metrics holds the Prometheus collectors for relay outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSent     = "sent"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	Submissions  *prometheus.CounterVec
	SendDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "form_relay_submissions_total",
			Help: "Form submissions handled, by outcome.",
		}, []string{"outcome"}),
		SendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "form_relay_send_duration_seconds",
			Help:    "Duration of the outbound send call.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Submissions, m.SendDuration)
	}
	return m
}

// Observe records one submission outcome. A nil *Metrics is a no-op.
func (m *Metrics) Observe(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSend(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SendDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
}
