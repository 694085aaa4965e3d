package activity

import (
	"context"
	"time"
)

// Action identifies what a record describes.
type Action string

const (
	ActionLogin              Action = "login"
	ActionLogout             Action = "logout"
	ActionUserCreated        Action = "user_created"
	ActionUserUpdated        Action = "user_updated"
	ActionUserDeleted        Action = "user_deleted"
	ActionUserSuspended      Action = "user_suspended"
	ActionUserActivated      Action = "user_activated"
	ActionGroupCreated       Action = "group_created"
	ActionGroupMemberAdded   Action = "group_member_added"
	ActionGroupMemberRemoved Action = "group_member_removed"
	ActionSessionCreated     Action = "session_created"
	ActionSessionRevoked     Action = "session_revoked"
	ActionSessionExpired     Action = "session_expired"
	ActionBulkOperation      Action = "bulk_operation"
	ActionSecuritySweep      Action = "security_sweep"
)

// Outcome represents the result of the recorded action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Activity is a single append-only log record.
type Activity struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Action    Action         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Outcome   Outcome        `json:"outcome"`
	Timestamp time.Time      `json:"timestamp"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Filter selects records for List. Zero values mean "no constraint".
type Filter struct {
	UserID    string
	SessionID string
	Actions   []Action
	Outcome   *Outcome
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Matches reports whether the record satisfies every set constraint.
func (f Filter) Matches(a *Activity) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && a.SessionID != f.SessionID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, act := range f.Actions {
			if a.Action == act {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Outcome != nil && a.Outcome != *f.Outcome {
		return false
	}
	if f.Since != nil && a.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && a.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

// Stats summarizes a slice of the log.
type Stats struct {
	TotalRecords     int64              `json:"total_records"`
	RecordsByAction  map[Action]int64   `json:"records_by_action"`
	RecordsByOutcome map[Outcome]int64  `json:"records_by_outcome"`
	UniqueUsers      int64              `json:"unique_users"`
	FailedLogins     int64              `json:"failed_logins"`
	TimeRange        *TimeRange         `json:"time_range,omitempty"`
}

// TimeRange bounds a stats query.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Recorder is the write side of the log. Components that only produce
// records depend on this rather than the full Store.
type Recorder interface {
	Record(ctx context.Context, a *Activity) error
}

// Store is the full log contract: append plus read-only consumption.
type Store interface {
	Recorder

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Activity, error)

	// CountSince returns the number of records with Timestamp >= since.
	CountSince(ctx context.Context, since time.Time) (int64, error)

	// Stats summarizes records within the optional time range.
	Stats(ctx context.Context, start, end *time.Time) (*Stats, error)

	// Close releases backend resources.
	Close() error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, a *Activity) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, a *Activity) error {
	return f(ctx, a)
}

// NopRecorder discards every record. Used when no log is configured.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(ctx context.Context, a *Activity) error { return nil }
