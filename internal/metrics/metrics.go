package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resolver",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "provider_requests_total",
		Help:      "Total source adapter calls by provider name and result status.",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resolver",
		Name:      "provider_request_duration_seconds",
		Help:      "Source adapter call duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"provider"})

	SchedulerQueueWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resolver",
		Name:      "scheduler_queue_wait_seconds",
		Help:      "Time a task waited for a concurrency slot and its pacing turn.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"scheduler"})

	SchedulerTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "scheduler_tasks_total",
		Help:      "Scheduled tasks by scheduler and outcome (ok, error, timeout, panic, skipped).",
	}, []string{"scheduler", "outcome"})

	UnlockOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "unlock_outcomes_total",
		Help:      "Unlock resolutions by provider and final state.",
	}, []string{"provider", "state"})

	FallbackInvocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "fallback_invocations_total",
		Help:      "External aggregator fallback calls by result status.",
	}, []string{"status"})

	ResolveRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "resolve_requests_total",
		Help:      "Stream resolutions by media type and response status.",
	}, []string{"type", "status"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "cache_hits_total",
		Help:      "Total number of result cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "cache_misses_total",
		Help:      "Total number of result cache misses.",
	})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the inbound rate limiter.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		SchedulerQueueWait,
		SchedulerTasksTotal,
		UnlockOutcomesTotal,
		FallbackInvocationsTotal,
		ResolveRequestsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		RateLimitedTotal,
	)
}
