package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "forestkeeper"

type Metrics struct {
	ReportsCreated      prometheus.Counter
	ReportsDeleted      prometheus.Counter
	SubmissionFailures  prometheus.Counter
	OverlayLoadFailures prometheus.Counter
	NotificationsSent   *prometheus.CounterVec // labels: outcome={sent,error}
	AdminGateAttempts   *prometheus.CounterVec // labels: outcome={accepted,rejected}
	ExportsGenerated    *prometheus.CounterVec // labels: format={csv,geojson,pdf}
}

// NewMetrics creates the collectors and registers them with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReportsCreated,
		m.ReportsDeleted,
		m.SubmissionFailures,
		m.OverlayLoadFailures,
		m.NotificationsSent,
		m.AdminGateAttempts,
		m.ExportsGenerated,
	)
	return m
}

// NewMetricsForTesting returns unregistered collectors so tests can build
// many apps in one process.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reports_created_total",
			Help:      "Reports appended to a collection.",
		}),
		ReportsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reports_deleted_total",
			Help:      "Reports removed from the admin map.",
		}),
		SubmissionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "report_submission_failures_total",
			Help:      "Report submissions that could not be persisted.",
		}),
		OverlayLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "overlay_load_failures_total",
			Help:      "Overlay fetch or parse failures; the map is shown without it.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "report_notifications_total",
			Help:      "New-report notification emails by outcome.",
		}, []string{"outcome"}),
		AdminGateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "admin_gate_attempts_total",
			Help:      "Admin password attempts by outcome.",
		}, []string{"outcome"}),
		ExportsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exports_generated_total",
			Help:      "Admin exports served by format.",
		}, []string{"format"}),
	}
}
