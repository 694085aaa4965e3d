package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSession(id, userID string) *Session {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Session{
		ID:           id,
		UserID:       userID,
		Status:       StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(DefaultTTL),
		LastActivity: now,
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	sess := testSession("s1", "user-1")
	sess.IPAddress = "203.0.113.9"
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.UserID, got.UserID)
	assert.Equal(t, sess.IPAddress, got.IPAddress)
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt))

	missing, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisStoreUpdateInPlace(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	sess := testSession("s1", "user-1")
	require.NoError(t, store.Put(ctx, sess))

	sess.Status = StatusRevoked
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRedisStoreIndexes(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s1", "user-1")))
	require.NoError(t, store.Put(ctx, testSession("s2", "user-1")))
	require.NoError(t, store.Put(ctx, testSession("s3", "user-2")))

	mine, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisStoreDelete(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s1", "user-1")))
	require.NoError(t, store.Delete(ctx, "s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	mine, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, mine)

	// Deleting twice is harmless.
	require.NoError(t, store.Delete(ctx, "s1"))
}

func TestRedisStorePrunesStaleIndexEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, WithRetention(time.Minute))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSession("s1", "user-1")))
	require.NoError(t, store.Put(ctx, testSession("s2", "user-1")))

	// Age the first record past its retention TTL; the index entry
	// should be pruned on the next list.
	mr.FastForward(2 * time.Minute)

	mine, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestManagerWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client)
	t.Cleanup(func() { _ = store.Close() })

	mgr := NewManager(ManagerConfig{Store: store})
	ctx := context.Background()

	sess, err := mgr.Create(ctx, "user-1", "", "")
	require.NoError(t, err)

	ok, err := mgr.Revoke(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := mgr.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)
}
