package session

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/observability"
)

// DefaultTTL is the engine-wide session lifetime. Sessions are minted
// with this fixed TTL regardless of per-user timeout settings.
const DefaultTTL = 4 * time.Hour

// ManagerConfig configures a Manager. Zero fields get defaults.
type ManagerConfig struct {
	Store    Store
	Recorder activity.Recorder
	Logger   *observability.Logger
	TTL      time.Duration
	Clock    func() time.Time
}

// Manager owns session lifecycle: creation, revocation, and the expiry
// sweep. Terminal states never revert.
type Manager struct {
	store    Store
	recorder activity.Recorder
	logger   *observability.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = activity.NopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		store:    cfg.Store,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		ttl:      cfg.TTL,
		now:      cfg.Clock,
	}
}

// Create mints an active session for the user and records it.
func (m *Manager) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, error) {
	now := m.now().UTC()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       StatusActive,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		LastActivity: now,
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	m.record(ctx, &activity.Activity{
		UserID:    userID,
		SessionID: sess.ID,
		Action:    activity.ActionSessionCreated,
		Resource:  "session",
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return sess, nil
}

// Get returns the session, or (nil, nil) when unknown.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Revoke moves an active session to revoked. Unknown IDs return
// (false, nil). Revoking a session already in a terminal state is a
// no-op success: an expired session stays expired.
func (m *Manager) Revoke(ctx context.Context, id string) (bool, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	if sess.Terminal() {
		return true, nil
	}
	m.markRevoked(sess)
	if err := m.store.Put(ctx, sess); err != nil {
		return false, err
	}
	m.record(ctx, &activity.Activity{
		UserID:    sess.UserID,
		SessionID: id,
		Action:    activity.ActionSessionRevoked,
		Resource:  "session",
	})
	return true, nil
}

// RevokeAllForUser revokes every active session the user holds and
// returns how many transitioned. Used by the delete and suspend cascades.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for _, sess := range sessions {
		if sess.Terminal() {
			continue
		}
		m.markRevoked(sess)
		if err := m.store.Put(ctx, sess); err != nil {
			return revoked, err
		}
		m.record(ctx, &activity.Activity{
			UserID:    userID,
			SessionID: sess.ID,
			Action:    activity.ActionSessionRevoked,
			Resource:  "session",
		})
		revoked++
	}
	return revoked, nil
}

// ActiveForUser returns the user's currently usable sessions, newest
// first. Sessions past their expiry are excluded even if the sweep has
// not marked them yet.
func (m *Manager) ActiveForUser(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	active := sessions[:0]
	for _, sess := range sessions {
		if sess.ActiveAt(now) {
			active = append(active, sess)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

// Touch refreshes the session's last-activity timestamp. Inactive or
// unknown sessions return false without mutation.
func (m *Manager) Touch(ctx context.Context, id string) (bool, error) {
	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	now := m.now().UTC()
	if sess == nil || !sess.ActiveAt(now) {
		return false, nil
	}
	sess.LastActivity = now
	if err := m.store.Put(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// ExpireStale marks every active session past its expiry as expired and
// returns the number transitioned. Each record is handled independently
// so a storage failure on one does not abandon the rest.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	sessions, err := m.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now().UTC()
	expired := 0
	var lastErr error
	for _, sess := range sessions {
		if sess.Status != StatusActive || now.Before(sess.ExpiresAt) {
			continue
		}
		sess.Status = StatusExpired
		if err := m.store.Put(ctx, sess); err != nil {
			m.logger.WithError(err).WithField("session_id", sess.ID).Warn("failed to expire session")
			lastErr = err
			continue
		}
		m.record(ctx, &activity.Activity{
			UserID:    sess.UserID,
			SessionID: sess.ID,
			Action:    activity.ActionSessionExpired,
			Resource:  "session",
		})
		expired++
	}
	return expired, lastErr
}

// CountActive returns the number of currently usable sessions.
func (m *Manager) CountActive(ctx context.Context) (int, error) {
	sessions, err := m.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now().UTC()
	count := 0
	for _, sess := range sessions {
		if sess.ActiveAt(now) {
			count++
		}
	}
	return count, nil
}

func (m *Manager) markRevoked(sess *Session) {
	now := m.now().UTC()
	sess.Status = StatusRevoked
	sess.RevokedAt = &now
}

func (m *Manager) record(ctx context.Context, a *activity.Activity) {
	if err := m.recorder.Record(ctx, a); err != nil {
		m.logger.WithError(err).WithField("action", string(a.Action)).Warn("failed to record activity")
	}
}
