package engine

import (
	"context"
	"errors"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/directory"
	"github.com/meridianhq/aegis/pkg/session"
)

// ErrAccountInactive is returned when a session is requested for a user
// whose account cannot log in right now.
var ErrAccountInactive = errors.New("account is not active")

// Login creates a session for the user. Unknown users return
// (nil, false, nil). A user who exists but is suspended, inactive, or
// inside an account lock gets ErrAccountInactive and a denied login in
// the activity log.
func (e *Engine) Login(ctx context.Context, userID, ipAddress, userAgent string) (*session.Session, bool, error) {
	u, ok := e.directory.GetUser(userID)
	if !ok {
		return nil, false, nil
	}

	if !e.canLogin(u) {
		e.recordLogin(ctx, userID, ipAddress, userAgent, activity.OutcomeDenied)
		return nil, true, ErrAccountInactive
	}

	sess, err := e.sessions.Create(ctx, userID, ipAddress, userAgent)
	if err != nil {
		return nil, true, err
	}
	e.directory.NoteLogin(userID)
	e.recordLogin(ctx, userID, ipAddress, userAgent, activity.OutcomeSuccess)
	e.metrics.SessionsCreated.Inc()
	e.refreshGauges(ctx)
	return sess, true, nil
}

// RecordLoginFailure logs a failed login attempt. The failure is written
// even when the user ID is unknown so probing invalid accounts still
// leaves a trace; the return value reports whether the user exists.
func (e *Engine) RecordLoginFailure(ctx context.Context, userID, ipAddress, userAgent string) bool {
	known := e.directory.NoteFailedLogin(userID)
	e.recordLogin(ctx, userID, ipAddress, userAgent, activity.OutcomeFailure)
	e.metrics.FailedLoginsTotal.Inc()
	return known
}

// GetSession returns the session, or (nil, nil) when unknown.
func (e *Engine) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return e.sessions.Get(ctx, id)
}

// RevokeSession revokes a session. Unknown IDs return (false, nil);
// revoking a session already in a terminal state is a no-op success.
func (e *Engine) RevokeSession(ctx context.Context, id string) (bool, error) {
	ok, err := e.sessions.Revoke(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	e.metrics.SessionsRevoked.Inc()
	e.refreshGauges(ctx)
	return true, nil
}

// GetUserSessions returns the user's currently usable sessions.
func (e *Engine) GetUserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	return e.sessions.ActiveForUser(ctx, userID)
}

// TouchSession refreshes a session's last-activity timestamp.
func (e *Engine) TouchSession(ctx context.Context, id string) (bool, error) {
	return e.sessions.Touch(ctx, id)
}

func (e *Engine) canLogin(u *directory.User) bool {
	if u.Status != directory.StatusActive {
		return false
	}
	if until := u.Security.AccountLockedUntil; until != nil && e.now().UTC().Before(*until) {
		return false
	}
	return true
}

func (e *Engine) recordLogin(ctx context.Context, userID, ipAddress, userAgent string, outcome activity.Outcome) {
	err := e.recorder.Record(ctx, &activity.Activity{
		UserID:    userID,
		Action:    activity.ActionLogin,
		Resource:  "session",
		Outcome:   outcome,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Warn("failed to record login activity")
	}
}
