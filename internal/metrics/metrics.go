package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mute Scheduler Metrics
var (
	// MutesScheduledTotal tracks armed mute timers by origin (command, rejoin, recovery)
	MutesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutes_scheduled_total",
			Help: "Mute timers armed by origin",
		},
		[]string{"origin"},
	)

	// MutesReleasedTotal tracks mutes that ended by reason (expired, cancelled, recovered_expired, rejoin_expired)
	MutesReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutes_released_total",
			Help: "Mutes removed from the scheduler by reason",
		},
		[]string{"reason"},
	)

	// MutesActive tracks mute records currently held by the scheduler (armed or pending rejoin)
	MutesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mutes_active",
			Help: "Mute records currently held by the scheduler",
		},
	)

	// MuteStoreWritesTotal tracks durable store writes by status
	MuteStoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mute_store_writes_total",
			Help: "Durable mute store writes by status",
		},
		[]string{"status"},
	)

	// MuteStoreWriteDuration tracks durable store write latency in seconds
	MuteStoreWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mute_store_write_duration_seconds",
			Help:    "Durable mute store write duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Role Mutation Metrics
var (
	// RoleMutationsTotal tracks per-member role mutations by operation (add/remove) and status
	RoleMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_mutations_total",
			Help: "Per-member role mutations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RoleMutationsSkippedTotal tracks members excluded from a batch by reason
	RoleMutationsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_mutations_skipped_total",
			Help: "Members excluded from role mutations by reason",
		},
		[]string{"reason"},
	)

	// RoleRemoveRetriesTotal tracks retries of best-effort marker removal
	RoleRemoveRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "role_remove_retries_total",
			Help: "Retries of best-effort marker removal",
		},
	)
)

// Copycat Metrics
var (
	// CopycatChecksTotal tracks copycat verdicts
	CopycatChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copycat_checks_total",
			Help: "Copycat checks by verdict",
		},
		[]string{"verdict"},
	)

	// CopycatTargets tracks the size of the protected-name pool
	CopycatTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "copycat_targets",
			Help: "Protected names in the copycat pool",
		},
	)
)

// Chat Event Metrics
var (
	// EventsHandledTotal tracks chat events by type and outcome (ok, error, panic)
	EventsHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_handled_total",
			Help: "Chat events handled by type and outcome",
		},
		[]string{"event", "outcome"},
	)

	// CommandsTotal tracks moderator commands by name
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_total",
			Help: "Moderator commands by name",
		},
		[]string{"command"},
	)

	// BlockedLinksTotal tracks deleted messages linking to blacklisted destinations
	BlockedLinksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blocked_links_total",
			Help: "Messages deleted for blacklisted links",
		},
	)

	// ShortLinkLookupsTotal tracks short-link resolutions by result (hit, miss, error)
	ShortLinkLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "short_link_lookups_total",
			Help: "Short-link resolutions by result",
		},
		[]string{"result"},
	)

	// PriceFetchesTotal tracks price source fetches by source and status
	PriceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_fetches_total",
			Help: "Price source fetches by source and status",
		},
		[]string{"source", "status"},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks SQL statement latency by leading keyword and backend
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "query"},
	)

	// DBErrorsTotal tracks failed SQL statements
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Failed database queries by backend and leading keyword",
		},
		[]string{"backend", "query"},
	)
)
