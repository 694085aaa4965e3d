package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/aegis/pkg/activity"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager(t *testing.T) (*Manager, *fakeClock, *activity.MemoryStore) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := activity.NewMemoryStore()
	mgr := NewManager(ManagerConfig{
		Recorder: store,
		Clock:    clock.Now,
	})
	return mgr, clock, store
}

func TestCreateSession(t *testing.T) {
	mgr, clock, store := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "user-1", "203.0.113.9", "cli/1.0")
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "user-1", sess.UserID)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, clock.now, sess.CreatedAt)
	assert.Equal(t, clock.now.Add(DefaultTTL), sess.ExpiresAt)
	assert.Equal(t, "203.0.113.9", sess.IPAddress)

	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)

	records, err := store.List(ctx, activity.Filter{
		UserID:  "user-1",
		Actions: []activity.Action{activity.ActionSessionCreated},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sess.ID, records[0].SessionID)
}

func TestGetUnknownSession(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	got, err := mgr.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRevokeSession(t *testing.T) {
	mgr, _, store := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	ok, err := mgr.Revoke(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)
	require.NotNil(t, got.RevokedAt)

	// Revoking again is a no-op success and writes nothing new.
	ok, err = mgr.Revoke(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	records, err := store.List(ctx, activity.Filter{
		Actions: []activity.Action{activity.ActionSessionRevoked},
	})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	ok, err = mgr.Revoke(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeExpiredSessionDoesNotRevert(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	clock.Advance(DefaultTTL + time.Minute)
	n, err := mgr.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := mgr.Revoke(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestRevokeAllForUser(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	s1, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)
	_, err = mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)
	other, err := mgr.Create(ctx, "user-2", "", "")
	require.NoError(t, err)

	// One of user-1's sessions is already revoked; it does not count.
	_, err = mgr.Revoke(ctx, s1.ID)
	require.NoError(t, err)

	n, err := mgr.RevokeAllForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := mgr.ActiveForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	untouched, err := mgr.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, untouched.Status)
}

func TestActiveForUserExcludesStale(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	stale, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	clock.Advance(DefaultTTL + time.Minute)
	fresh, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	// The sweep has not run, but the stale session is already unusable.
	active, err := mgr.ActiveForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)

	got, err := mgr.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestExpireStaleSweep(t *testing.T) {
	mgr, clock, store := newTestManager(t)
	ctx := context.Background()

	old1, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)
	old2, err := mgr.Create(ctx, "user-2", "", "")
	require.NoError(t, err)

	// Revoked before expiry; the sweep must leave it revoked.
	_, err = mgr.Revoke(ctx, old2.ID)
	require.NoError(t, err)

	clock.Advance(DefaultTTL + time.Minute)
	fresh, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	n, err := mgr.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := mgr.Get(ctx, old1.ID)
	assert.Equal(t, StatusExpired, got.Status)
	got, _ = mgr.Get(ctx, old2.ID)
	assert.Equal(t, StatusRevoked, got.Status)
	got, _ = mgr.Get(ctx, fresh.ID)
	assert.Equal(t, StatusActive, got.Status)

	records, err := store.List(ctx, activity.Filter{
		Actions: []activity.Action{activity.ActionSessionExpired},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, old1.ID, records[0].SessionID)

	// Sweeping again finds nothing new.
	n, err = mgr.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTouch(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	ok, err := mgr.Touch(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := mgr.Get(ctx, sess.ID)
	assert.Equal(t, clock.now, got.LastActivity)

	_, err = mgr.Revoke(ctx, sess.ID)
	require.NoError(t, err)
	ok, err = mgr.Touch(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mgr.Touch(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountActive(t *testing.T) {
	mgr, clock, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)
	second, err := mgr.Create(ctx, "user-2", "", "")
	require.NoError(t, err)

	n, err := mgr.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = mgr.Revoke(ctx, second.ID)
	require.NoError(t, err)
	n, err = mgr.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.Advance(DefaultTTL + time.Minute)
	n, err = mgr.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
