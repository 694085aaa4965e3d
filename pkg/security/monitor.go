// Package security watches the activity log for abuse patterns and
// locks out offending accounts.
package security

import (
	"context"
	"time"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/directory"
	"github.com/meridianhq/aegis/pkg/observability"
)

const (
	// DefaultThreshold is the number of failed logins inside the window
	// that triggers a lockout.
	DefaultThreshold = 5

	// DefaultWindow is the sliding window the monitor examines. Failures
	// older than this no longer count against a user.
	DefaultWindow = time.Hour

	// DefaultLockout is how long a triggered suspension lasts.
	DefaultLockout = 30 * time.Minute
)

// AccountSuspender is the engine surface the monitor acts through, so a
// lockout carries the same cascades as a manual suspension.
type AccountSuspender interface {
	GetUser(id string) (*directory.User, bool)
	SuspendUser(ctx context.Context, id, reason string, duration time.Duration) bool
}

// ActivitySource is the slice of the activity store the monitor reads.
type ActivitySource interface {
	List(ctx context.Context, filter activity.Filter) ([]*activity.Activity, error)
}

// MonitorConfig configures a Monitor. Zero fields get defaults.
type MonitorConfig struct {
	Activities ActivitySource
	Accounts   AccountSuspender
	Recorder   activity.Recorder
	Logger     *observability.Logger

	Threshold int
	Window    time.Duration
	Lockout   time.Duration

	Clock func() time.Time
}

// Monitor scans recent login failures and suspends accounts that cross
// the threshold.
type Monitor struct {
	activities ActivitySource
	accounts   AccountSuspender
	recorder   activity.Recorder
	logger     *observability.Logger
	threshold  int
	window     time.Duration
	lockout    time.Duration
	now        func() time.Time
}

// NewMonitor creates a security monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Recorder == nil {
		cfg.Recorder = activity.NopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = DefaultLockout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Monitor{
		activities: cfg.Activities,
		accounts:   cfg.Accounts,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger,
		threshold:  cfg.Threshold,
		window:     cfg.Window,
		lockout:    cfg.Lockout,
		now:        cfg.Clock,
	}
}

// SweepResult summarizes one monitor pass.
type SweepResult struct {
	FailuresSeen int
	Flagged      int
	Suspended    int
	Skipped      int // already suspended when the sweep reached them
}

// Sweep tallies login failures per user inside the sliding window and
// suspends every account at or over the threshold. Accounts that are
// already suspended are left alone so repeated sweeps do not keep
// extending the lockout.
func (m *Monitor) Sweep(ctx context.Context) (SweepResult, error) {
	now := m.now().UTC()
	since := now.Add(-m.window)
	failure := activity.OutcomeFailure
	records, err := m.activities.List(ctx, activity.Filter{
		Actions: []activity.Action{activity.ActionLogin},
		Outcome: &failure,
		Since:   &since,
	})
	if err != nil {
		return SweepResult{}, err
	}

	counts := make(map[string]int)
	for _, r := range records {
		if r.UserID == "" {
			continue
		}
		counts[r.UserID]++
	}

	result := SweepResult{FailuresSeen: len(records)}
	for userID, n := range counts {
		if n < m.threshold {
			continue
		}
		result.Flagged++

		if u, ok := m.accounts.GetUser(userID); ok && u.Status == directory.StatusSuspended {
			result.Skipped++
			continue
		}
		if !m.accounts.SuspendUser(ctx, userID, "excessive failed login attempts", m.lockout) {
			continue
		}
		result.Suspended++
		m.logger.WithFields(map[string]interface{}{
			"user_id":  userID,
			"failures": n,
			"lockout":  m.lockout.String(),
		}).Warn("account locked by security sweep")
	}

	if err := m.recorder.Record(ctx, &activity.Activity{
		Action:   activity.ActionSecuritySweep,
		Resource: "security",
		Metadata: map[string]any{
			"failures_seen": result.FailuresSeen,
			"flagged":       result.Flagged,
			"suspended":     result.Suspended,
		},
	}); err != nil {
		m.logger.WithError(err).Warn("failed to record activity")
	}
	return result, nil
}
