package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels shared by the agent counters
const (
	ResultSuccess        = "success"
	ResultFailure        = "failure"
	ResultTransportError = "transport_error"
	ResultNotRenewable   = "not_renewable"
)

// Sweep outcome labels
const (
	SweepComplete = "complete" // every path fetched
	SweepPartial  = "partial"  // at least one path failed
	SweepSkipped  = "skipped"  // not authenticated after evaluation
)

var (
	// Authentication metrics
	authAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_auth_attempts_total",
		Help: "Total AppRole login attempts",
	}, []string{
		"result", // success, failure, transport_error
	})

	tokenRenewalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_token_renewals_total",
		Help: "Total token renew-self attempts",
	}, []string{
		"result", // success, failure, transport_error, not_renewable
	})

	tokenRemainingTTL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_token_remaining_ttl_seconds",
		Help: "Remaining lease of the session token at the last evaluation",
	})

	lifecycleState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_lifecycle_state",
		Help: "Current token lifecycle state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	// Secret fetch metrics
	secretFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_secret_fetches_total",
		Help: "Total KV reads per tracked path",
	}, []string{
		"path",
		"result", // success, failure, transport_error
	})

	secretFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "agent_secret_fetch_duration_seconds",
		Help: "Duration of a single KV read",
		// Buckets: 5ms to 10s (request timeout)
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"result"})

	// Sweep metrics
	sweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_sweeps_total",
		Help: "Total refresh sweeps by outcome",
	}, []string{
		"outcome", // complete, partial, skipped
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_sweep_duration_seconds",
		Help:    "Duration of a full sweep over every tracked path",
		Buckets: prometheus.DefBuckets,
	})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_cache_entries",
		Help: "Number of paths currently held in the secret cache",
	})

	// Mirror metrics
	mirrorPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_mirror_publishes_total",
		Help: "Total cache entries mirrored to Redis",
	}, []string{"result"})
)

// RecordAuthAttempt records the outcome of an AppRole login
func RecordAuthAttempt(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordTokenRenewal records the outcome of a renew-self attempt
func RecordTokenRenewal(result string) {
	tokenRenewalsTotal.WithLabelValues(result).Inc()
}

// UpdateTokenRemainingTTL sets the remaining-lease gauge
func UpdateTokenRemainingTTL(seconds int64) {
	tokenRemainingTTL.Set(float64(seconds))
}

// UpdateLifecycleState marks state as the active one among all states
func UpdateLifecycleState(state string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		lifecycleState.WithLabelValues(s).Set(value)
	}
}

// RecordSecretFetch records one KV read
func RecordSecretFetch(path, result string, duration float64) {
	secretFetchesTotal.WithLabelValues(path, result).Inc()
	secretFetchDuration.WithLabelValues(result).Observe(duration)
}

// RecordSweep records a finished or skipped sweep. Skipped sweeps carry no duration.
func RecordSweep(outcome string, duration float64) {
	sweepsTotal.WithLabelValues(outcome).Inc()
	if outcome != SweepSkipped {
		sweepDuration.Observe(duration)
	}
}

// UpdateCacheEntries sets the cache size gauge
func UpdateCacheEntries(count int) {
	cacheEntries.Set(float64(count))
}

// RecordMirrorPublish records one Redis mirror write
func RecordMirrorPublish(result string) {
	mirrorPublishesTotal.WithLabelValues(result).Inc()
}
