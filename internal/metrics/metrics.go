package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the mailjob client
type Metrics struct {
	// Gateway
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Session
	ForcedLogoutsTotal prometheus.Counter

	// Jobs
	JobActionsTotal         *prometheus.CounterVec
	ValidationFailuresTotal *prometheus.CounterVec
	StaleResponsesTotal     *prometheus.CounterVec

	// Watch loop
	RefreshesTotal     *prometheus.CounterVec
	CacheFallbackTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjob_api_requests_total",
				Help: "Total number of backend API requests",
			},
			[]string{"method", "route", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailjob_api_request_duration_seconds",
				Help:    "Backend API request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjob_api_errors_total",
				Help: "Total number of failed backend API requests",
			},
			[]string{"error_type"},
		),

		ForcedLogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailjob_forced_logouts_total",
				Help: "Total number of sessions cleared after the backend rejected the token",
			},
		),

		JobActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjob_job_actions_total",
				Help: "Total number of pause/resume/cancel requests by outcome",
			},
			[]string{"action", "result"},
		),
		ValidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjob_validation_failures_total",
				Help: "Total number of drafts rejected before submission",
			},
			[]string{"code"},
		),
		StaleResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjob_stale_responses_total",
				Help: "Total number of responses discarded because a newer request superseded them",
			},
			[]string{"kind"},
		),

		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjob_refreshes_total",
				Help: "Total number of list/run refresh cycles by outcome",
			},
			[]string{"kind", "result"},
		),
		CacheFallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjob_cache_fallback_total",
				Help: "Total number of views served from the local cache after a failed refresh",
			},
			[]string{"kind"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.ForcedLogoutsTotal,
		m.JobActionsTotal,
		m.ValidationFailuresTotal,
		m.StaleResponsesTotal,
		m.RefreshesTotal,
		m.CacheFallbackTotal,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncForcedLogout increments the forced logout counter
func IncForcedLogout() {
	m := Global()
	if m != nil {
		m.ForcedLogoutsTotal.Inc()
	}
}

// IncJobAction records the outcome of a lifecycle action
func IncJobAction(action, result string) {
	m := Global()
	if m != nil {
		m.JobActionsTotal.WithLabelValues(action, result).Inc()
	}
}

// IncValidationFailure increments the rejected draft counter
func IncValidationFailure(code string) {
	m := Global()
	if m != nil {
		m.ValidationFailuresTotal.WithLabelValues(code).Inc()
	}
}

// IncStaleResponse increments the discarded response counter
func IncStaleResponse(kind string) {
	m := Global()
	if m != nil {
		m.StaleResponsesTotal.WithLabelValues(kind).Inc()
	}
}

// IncRefresh records a refresh cycle outcome
func IncRefresh(kind, result string) {
	m := Global()
	if m != nil {
		m.RefreshesTotal.WithLabelValues(kind, result).Inc()
	}
}

// IncCacheFallback increments the cache fallback counter
func IncCacheFallback(kind string) {
	m := Global()
	if m != nil {
		m.CacheFallbackTotal.WithLabelValues(kind).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
