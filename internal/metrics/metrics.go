package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phishguard_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Block list metrics
var (
	BlocklistRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_blocklist_refresh_total",
		Help: "Total number of block list refreshes by outcome",
	}, []string{"outcome"})

	BlocklistHosts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phishguard_blocklist_hosts",
		Help: "Number of hosts in the active block list",
	})

	BlocklistVetoesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phishguard_blocklist_vetoes_total",
		Help: "Total number of requests cancelled by the filter",
	})
)

// Scan metrics
var (
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_scans_total",
		Help: "Total number of scans by kind and prediction",
	}, []string{"kind", "prediction"})

	ScansDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_scans_degraded_total",
		Help: "Total number of scans answered without the inference API",
	}, []string{"kind"})

	HistoryWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_history_writes_total",
		Help: "Total number of scan history writes by outcome",
	}, []string{"outcome"})
)

// Realtime metrics
var (
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phishguard_active_subscriptions",
		Help: "Number of live realtime views",
	})
)

// Event counters (incremented on occurrence)
var (
	ReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phishguard_reports_total",
		Help: "Total number of scam reports submitted",
	})

	QuestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_questions_total",
		Help: "Total number of Q&A operations",
	}, []string{"operation"})

	LessonsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phishguard_lessons_completed_total",
		Help: "Total number of lessons completed",
	})

	AuthLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phishguard_auth_logins_total",
		Help: "Total number of login attempts",
	}, []string{"method", "status"})
)
