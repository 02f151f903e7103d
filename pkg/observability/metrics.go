// Package observability defines the prometheus collectors the lattice
// components report into. Collectors are created in one place so the CLI
// can register them all against a single registry.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the module emits. A Metrics created with
// NewNop is usable but registered nowhere, which keeps instrumentation
// opt-in for library consumers.
type Metrics struct {
	// SessionTransitions counts handled session-state transitions by the
	// state entered.
	SessionTransitions *prometheus.CounterVec

	// EpochBumps counts session notifications delivered, i.e. connection
	// epoch increments.
	EpochBumps prometheus.Counter

	// RetryAttempts counts retry-wrapper attempts by operation description.
	RetryAttempts *prometheus.CounterVec

	// RetryExhausted counts retry budgets that ran out, by description.
	RetryExhausted *prometheus.CounterVec

	// LockAcquired counts successful distributed lock acquisitions.
	LockAcquired prometheus.Counter

	// LockInvalidated counts locks dropped by the epoch guard.
	LockInvalidated prometheus.Counter

	// CacheEntriesHandled counts shared-cache entries handed to handlers.
	CacheEntriesHandled prometheus.Counter

	// CacheEntriesExpired counts shared-cache entries removed by age.
	CacheEntriesExpired prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_session_transitions_total",
				Help: "Session-state transitions handled, by state entered",
			},
			[]string{"state"},
		),
		EpochBumps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_epoch_bumps_total",
			Help: "Session notifications delivered (connection epoch increments)",
		}),
		RetryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_retry_attempts_total",
				Help: "Retry-wrapper attempts, by operation",
			},
			[]string{"op"},
		),
		RetryExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lattice_retry_exhausted_total",
				Help: "Retry budgets exhausted, by operation",
			},
			[]string{"op"},
		),
		LockAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_lock_acquired_total",
			Help: "Distributed lock acquisitions",
		}),
		LockInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_lock_invalidated_total",
			Help: "Locks dropped by the connection-epoch guard",
		}),
		CacheEntriesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_cache_entries_handled_total",
			Help: "Shared-cache entries dispatched to handlers",
		}),
		CacheEntriesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lattice_cache_entries_expired_total",
			Help: "Shared-cache entries deleted by age-based expiry",
		}),
	}
}

// New creates the collector set and registers it on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.SessionTransitions,
		m.EpochBumps,
		m.RetryAttempts,
		m.RetryExhausted,
		m.LockAcquired,
		m.LockInvalidated,
		m.CacheEntriesHandled,
		m.CacheEntriesExpired,
	)
	return m
}

// NewNop creates the collector set without registering it anywhere.
func NewNop() *Metrics {
	return newMetrics()
}
