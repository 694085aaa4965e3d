// Package scheduler runs the engine's periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meridianhq/aegis/pkg/observability"
)

// JobFunc is a single scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner with named jobs, panic recovery, and
// per-job metrics. Jobs can also be fired directly with RunNow, which is
// how tests drive them deterministically.
type Scheduler struct {
	cron    *cron.Cron
	logger  *observability.Logger
	metrics *observability.Metrics

	mu   sync.RWMutex
	jobs map[string]JobFunc
}

// New creates a scheduler. Logger and metrics may be nil.
func New(logger *observability.Logger, metrics *observability.Metrics) *Scheduler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		metrics: metrics,
		jobs:    make(map[string]JobFunc),
	}
}

// Register adds a named job on a cron spec such as "@every 5m". Names
// must be unique.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	if _, dup := s.jobs[name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("job %q already registered", name)
	}
	s.jobs[name] = fn
	s.mu.Unlock()

	_, err := s.cron.AddFunc(spec, func() {
		s.execute(context.Background(), name, fn)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.jobs, name)
		s.mu.Unlock()
		return fmt.Errorf("schedule job %q: %w", name, err)
	}
	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": spec,
	}).Info("scheduled job registered")
	return nil
}

// Start begins firing jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow fires a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	fn, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.execute(ctx, name, fn)
}

func (s *Scheduler) execute(ctx context.Context, name string, fn JobFunc) error {
	defer observability.RecoverPanic(s.logger, "scheduled job "+name)

	start := time.Now()
	err := fn(ctx)
	s.metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = "error"
		s.logger.WithError(err).WithField("job", name).Error("scheduled job failed")
	}
	s.metrics.SweepRuns.WithLabelValues(name, outcome).Inc()
	return err
}
