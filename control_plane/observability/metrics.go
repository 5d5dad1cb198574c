// Package observability defines the Prometheus metrics surface: one
// promauto var block per subsystem.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// === Incident engine ===

	IncidentsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vanguard_incidents_active",
		Help: "Current number of active incidents",
	})

	IncidentsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_incidents_captured_total",
		Help: "Total number of incident captures, by severity",
	}, []string{"severity"})

	TriageDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_triage_decisions_total",
		Help: "Total triage decisions, by path (ai|heuristic) and outcome",
	}, []string{"path", "outcome"})

	SurgeonActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_surgeon_actions_total",
		Help: "Total remediation actions taken by the surgeon, by action and mode",
	}, []string{"action", "mode"})

	CompositeHealthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vanguard_composite_health_score",
		Help: "Current composite health score (0-100)",
	})

	VanguardMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vanguard_mode",
		Help: "Current Vanguard operating mode (1=active for that mode's label)",
	}, []string{"mode"})

	ModeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_mode_transitions_total",
		Help: "Total mode transitions, by from and to mode",
	}, []string{"from", "to"})

	HysteresisStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_hysteresis_state_changes_total",
		Help: "Total fallback activate/deactivate transitions, by dependency",
	}, []string{"dependency", "transition"})

	// === Routing / shadow-race ===

	RoutingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_routing_decisions_total",
		Help: "Total routing strategy decisions, by strategy",
	}, []string{"strategy"})

	ShadowRaceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_shadow_race_outcomes_total",
		Help: "Total shadow-race outcomes, by winning source",
	}, []string{"source"})

	ShadowRaceLateArrivals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vanguard_shadow_race_late_arrivals_total",
		Help: "Total live responses that arrived after the race already resolved",
	})

	FallbackActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vanguard_fallback_active",
		Help: "Whether a route's fallback handler is currently active (1/0)",
	}, []string{"route_key"})

	// === Rate limiter / idempotency / queue ===

	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_rate_limit_decisions_total",
		Help: "Total rate limiter decisions, by bucket and outcome",
	}, []string{"bucket", "outcome"})

	IdempotencyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_idempotency_outcomes_total",
		Help: "Total idempotency middleware outcomes, by state",
	}, []string{"state"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vanguard_queue_depth",
		Help: "Current number of queued tasks, by priority",
	}, []string{"priority"})

	QueueRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_queue_rejections_total",
		Help: "Tasks rejected by queue admission control, by reason",
	}, []string{"reason"})

	QueueTaskWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vanguard_queue_task_wait_seconds",
		Help:    "Time tasks spend waiting in queue before execution",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// === Pulse producer ===

	PulseCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vanguard_pulse_cycle_duration_seconds",
		Help:    "Duration of one live pulse poll-and-enrich cycle",
		Buckets: prometheus.DefBuckets,
	})

	PulseCycleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_pulse_cycle_failures_total",
		Help: "Pulse cycle exceptions that were swallowed to keep the loop alive",
	}, []string{"stage"})

	PulseGamesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vanguard_pulse_games_tracked",
		Help: "Current number of live games being tracked",
	})

	// === Coordination (leader election) ===

	LeadershipEpoch = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vanguard_leader_epoch",
		Help: "Current fencing epoch of the leader",
	}, []string{"node_id"})

	LeadershipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_leader_transitions_total",
		Help: "Total number of leadership transitions",
	}, []string{"node_id", "event"})

	LeadershipTransitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vanguard_leader_transition_duration_seconds",
		Help:    "Time taken for leadership transition (step-down to become-leader)",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	LeaderStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vanguard_leader_status",
		Help: "Current leader status (1 = leader, 0 = follower)",
	})

	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vanguard_redis_roundtrip_latency_seconds",
		Help:    "Redis operation latency (coordination spine health)",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	// === HTTP surface ===

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vanguard_http_requests_total",
		Help: "Total HTTP requests, by path and status class",
	}, []string{"path", "status_class"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vanguard_http_request_duration_seconds",
		Help:    "HTTP request duration, by path",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
)
