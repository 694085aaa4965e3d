package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Directory metrics
	UsersTotal       *prometheus.GaugeVec
	GroupsTotal      prometheus.Gauge
	AutoAssignsTotal prometheus.Counter

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsExpired  prometheus.Counter
	SessionsRevoked  prometheus.Counter

	// Security metrics
	LockoutsTotal      prometheus.Counter
	FailedLoginsTotal  prometheus.Counter

	// Bulk operation metrics
	BulkOperationsTotal *prometheus.CounterVec
	BulkItemsTotal      *prometheus.CounterVec

	// Activity metrics
	ActivitiesRecorded *prometheus.CounterVec

	// Sweep metrics
	SweepDuration *prometheus.HistogramVec
	SweepRuns     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics on the given
// registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		UsersTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aegis_users_total",
				Help: "Number of users by status",
			},
			[]string{"status"},
		),
		GroupsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_groups_total",
				Help: "Number of groups",
			},
		),
		AutoAssignsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_auto_assigns_total",
				Help: "Total group memberships granted by auto-assignment rules",
			},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_sessions_active",
				Help: "Number of currently active sessions",
			},
		),
		SessionsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_sessions_created_total",
				Help: "Total sessions created",
			},
		),
		SessionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_sessions_expired_total",
				Help: "Total sessions expired by the cleanup sweep",
			},
		),
		SessionsRevoked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_sessions_revoked_total",
				Help: "Total sessions revoked",
			},
		),
		LockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_lockouts_total",
				Help: "Total account lockouts triggered by the security monitor",
			},
		),
		FailedLoginsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aegis_failed_logins_total",
				Help: "Total failed login attempts recorded",
			},
		),
		BulkOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_bulk_operations_total",
				Help: "Total bulk operations by type and terminal status",
			},
			[]string{"type", "status"},
		),
		BulkItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_bulk_items_total",
				Help: "Total bulk operation items by outcome",
			},
			[]string{"outcome"},
		),
		ActivitiesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_activities_recorded_total",
				Help: "Total activity log records by action",
			},
			[]string{"action"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_sweep_duration_seconds",
				Help:    "Duration of background sweeps",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sweep"},
		),
		SweepRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_sweep_runs_total",
				Help: "Total background sweep runs by outcome",
			},
			[]string{"sweep", "outcome"},
		),
	}

	registry.MustRegister(
		m.UsersTotal,
		m.GroupsTotal,
		m.AutoAssignsTotal,
		m.SessionsActive,
		m.SessionsCreated,
		m.SessionsExpired,
		m.SessionsRevoked,
		m.LockoutsTotal,
		m.FailedLoginsTotal,
		m.BulkOperationsTotal,
		m.BulkItemsTotal,
		m.ActivitiesRecorded,
		m.SweepDuration,
		m.SweepRuns,
	)

	return m
}

// NewNopMetrics returns metrics registered on a throwaway registry.
// Used in tests and when metrics are disabled.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
