package engine

import (
	"context"
	"time"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/directory"
)

// SystemStats is a point-in-time summary of the whole system.
type SystemStats struct {
	Users             directory.UserCounts `json:"users"`
	Groups            int                  `json:"groups"`
	ActiveSessions    int                  `json:"active_sessions"`
	ActivitiesLast24h int64                `json:"activities_last_24h"`
	GeneratedAt       time.Time            `json:"generated_at"`
}

// GetSystemStats aggregates user, group, session, and activity counts.
func (e *Engine) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	now := e.now().UTC()

	active, err := e.sessions.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := e.activities.CountSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &SystemStats{
		Users:             e.directory.Counts(),
		Groups:            e.directory.GroupCount(),
		ActiveSessions:    active,
		ActivitiesLast24h: recent,
		GeneratedAt:       now,
	}, nil
}

// GetUserActivities returns the user's most recent activity, newest
// first.
func (e *Engine) GetUserActivities(ctx context.Context, userID string, limit int) ([]*activity.Activity, error) {
	return e.activities.List(ctx, activity.Filter{UserID: userID, Limit: limit})
}

// GetActivities queries the activity log.
func (e *Engine) GetActivities(ctx context.Context, filter activity.Filter) ([]*activity.Activity, error) {
	return e.activities.List(ctx, filter)
}

// GetActivityStats summarizes the activity log over an optional range.
func (e *Engine) GetActivityStats(ctx context.Context, start, end *time.Time) (*activity.Stats, error) {
	return e.activities.Stats(ctx, start, end)
}

// ExportActivities serializes matching activity records.
func (e *Engine) ExportActivities(ctx context.Context, filter activity.Filter, format activity.ExportFormat) ([]byte, error) {
	records, err := e.activities.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return activity.Export(records, format)
}
