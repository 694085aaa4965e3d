package engine

import (
	"context"

	"github.com/meridianhq/aegis/pkg/security"
)

// RunSessionSweep marks every active session past its expiry as expired
// and returns how many transitioned.
func (e *Engine) RunSessionSweep(ctx context.Context) (int, error) {
	n, err := e.sessions.ExpireStale(ctx)
	if n > 0 {
		e.metrics.SessionsExpired.Add(float64(n))
	}
	e.refreshGauges(ctx)
	return n, err
}

// RunSecuritySweep scans recent login failures and locks out accounts
// over the threshold.
func (e *Engine) RunSecuritySweep(ctx context.Context) (security.SweepResult, error) {
	result, err := e.monitor.Sweep(ctx)
	if err != nil {
		return result, err
	}
	if result.Suspended > 0 {
		e.metrics.LockoutsTotal.Add(float64(result.Suspended))
	}
	e.refreshGauges(ctx)
	return result, nil
}

// activityCleaner is satisfied by stores with retention support, such as
// the SQLite store.
type activityCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// RunActivityCleanup deletes activity records older than the retention
// window. Stores without retention support return (0, nil).
func (e *Engine) RunActivityCleanup(ctx context.Context, retentionDays int) (int64, error) {
	cleaner, ok := e.activities.(activityCleaner)
	if !ok {
		return 0, nil
	}
	return cleaner.Cleanup(ctx, retentionDays)
}
