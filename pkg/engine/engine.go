// Package engine is the composition root of the access-control system.
// It owns the directory, session manager, bulk orchestrator, and
// security monitor, and layers the cascades that tie them together: a
// deleted or suspended user loses their sessions, a security lockout is
// a real suspension, and every mutation lands in the activity log.
package engine

import (
	"context"
	"time"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/bulk"
	"github.com/meridianhq/aegis/pkg/directory"
	"github.com/meridianhq/aegis/pkg/observability"
	"github.com/meridianhq/aegis/pkg/permissions"
	"github.com/meridianhq/aegis/pkg/security"
	"github.com/meridianhq/aegis/pkg/session"
)

// Config assembles an Engine from its stores and tuning knobs. Zero
// fields get in-memory stores and the documented defaults.
type Config struct {
	Users        directory.UserRepository
	Groups       directory.GroupRepository
	Registry     *permissions.Registry
	Activities   activity.Store
	SessionStore session.Store

	Logger  *observability.Logger
	Metrics *observability.Metrics

	SessionTTL time.Duration
	BulkDelay  time.Duration

	LockoutThreshold int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration

	PermissionCacheSize int
	PermissionCacheTTL  time.Duration

	Clock func() time.Time
}

// Engine is the single entry point callers use. All operations on users,
// groups, sessions, bulk batches, and the activity log go through it.
type Engine struct {
	directory  *directory.Service
	sessions   *session.Manager
	bulk       *bulk.Orchestrator
	monitor    *security.Monitor
	activities activity.Store
	recorder   activity.Recorder
	logger     *observability.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	lockout    time.Duration
}

// New wires up an engine.
func New(cfg Config) *Engine {
	if cfg.Activities == nil {
		cfg.Activities = activity.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNopMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = security.DefaultLockout
	}

	e := &Engine{
		activities: cfg.Activities,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Clock,
		lockout:    cfg.LockoutDuration,
	}

	recorder := &meteredRecorder{store: cfg.Activities, metrics: cfg.Metrics}
	e.recorder = recorder

	e.directory = directory.NewService(directory.ServiceConfig{
		Users:               cfg.Users,
		Groups:              cfg.Groups,
		Registry:            cfg.Registry,
		Recorder:            recorder,
		Logger:              cfg.Logger,
		Clock:               cfg.Clock,
		PermissionCacheSize: cfg.PermissionCacheSize,
		PermissionCacheTTL:  cfg.PermissionCacheTTL,
	})

	e.sessions = session.NewManager(session.ManagerConfig{
		Store:    cfg.SessionStore,
		Recorder: recorder,
		Logger:   cfg.Logger,
		TTL:      cfg.SessionTTL,
		Clock:    cfg.Clock,
	})

	e.bulk = bulk.NewOrchestrator(bulk.OrchestratorConfig{
		Admin:    bulkAdmin{e},
		Recorder: recorder,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
		Delay:    cfg.BulkDelay,
		Clock:    cfg.Clock,
	})

	e.monitor = security.NewMonitor(security.MonitorConfig{
		Activities: cfg.Activities,
		Accounts:   e,
		Recorder:   recorder,
		Logger:     cfg.Logger,
		Threshold:  cfg.LockoutThreshold,
		Window:     cfg.LockoutWindow,
		Lockout:    cfg.LockoutDuration,
		Clock:      cfg.Clock,
	})

	return e
}

// Registry exposes the permission catalog.
func (e *Engine) Registry() *permissions.Registry {
	return e.directory.Registry()
}

// meteredRecorder forwards to the activity store and counts each record.
type meteredRecorder struct {
	store   activity.Store
	metrics *observability.Metrics
}

func (r *meteredRecorder) Record(ctx context.Context, a *activity.Activity) error {
	if err := r.store.Record(ctx, a); err != nil {
		return err
	}
	r.metrics.ActivitiesRecorded.WithLabelValues(string(a.Action)).Inc()
	return nil
}

// bulkAdmin adapts the engine to the bulk orchestrator's interface. Only
// UpdateUser needs reshaping; the rest is the engine surface as is.
type bulkAdmin struct {
	*Engine
}

func (a bulkAdmin) UpdateUser(ctx context.Context, id string, patch directory.UserPatch) (bool, error) {
	u, err := a.Engine.UpdateUser(ctx, id, patch)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// refreshGauges resyncs the population gauges after a mutation. The
// underlying stores are cheap to count.
func (e *Engine) refreshGauges(ctx context.Context) {
	counts := e.directory.Counts()
	for _, status := range directory.ValidStatuses() {
		e.metrics.UsersTotal.WithLabelValues(string(status)).Set(float64(counts.ByStatus[status]))
	}
	e.metrics.GroupsTotal.Set(float64(e.directory.GroupCount()))

	active, err := e.sessions.CountActive(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("failed to count active sessions")
		return
	}
	e.metrics.SessionsActive.Set(float64(active))
}
