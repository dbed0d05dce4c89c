// Package metrics defines the Prometheus instruments for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studysync_sessions_created_total",
		Help: "Total number of study sessions created",
	})

	SessionMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studysync_session_mutations_total",
		Help: "Session mutations by operation and result",
	}, []string{"operation", "result"})

	CASConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studysync_cas_conflicts_total",
		Help: "Total number of version conflicts hit during conditional writes",
	})

	SweepScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studysync_sweep_scans_total",
		Help: "Total number of expiry sweep passes",
	})

	SweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "studysync_sweep_duration_seconds",
		Help:    "Duration of expiry sweep passes",
		Buckets: prometheus.DefBuckets,
	})

	SessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studysync_sessions_expired_total",
		Help: "Total number of sessions marked expired by the sweeper",
	})

	SessionsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studysync_sessions_deleted_total",
		Help: "Total number of sessions deleted, by reason",
	}, []string{"reason"})

	DirectoryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studysync_directory_cache_hits_total",
		Help: "Display name lookups served from cache",
	})

	DirectoryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studysync_directory_cache_misses_total",
		Help: "Display name lookups that went to the backing directory",
	})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "studysync_circuit_breaker_state",
		Help: "Circuit breaker state per component (0 closed, 1 half-open, 2 open)",
	}, []string{"component"})

	CircuitBreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studysync_circuit_breaker_state_changes_total",
		Help: "Circuit breaker transitions per component and new state",
	}, []string{"component", "state"})

	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "studysync_build_info",
		Help: "Build information, value is always 1",
	}, []string{"version", "commit", "go_version"})
)
