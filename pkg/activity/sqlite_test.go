package activity

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "activity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, &Activity{
		UserID:    "u1",
		SessionID: "s1",
		Action:    ActionLogin,
		Outcome:   OutcomeFailure,
		Timestamp: now,
		IPAddress: "10.0.0.1",
		Metadata:  map[string]any{"attempt": float64(3)},
	}))
	require.NoError(t, store.Record(ctx, &Activity{
		UserID:    "u2",
		Action:    ActionUserCreated,
		Timestamp: now.Add(time.Second),
	}))

	got, err := store.List(ctx, Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ActionLogin, got[0].Action)
	assert.Equal(t, OutcomeFailure, got[0].Outcome)
	assert.Equal(t, "10.0.0.1", got[0].IPAddress)
	assert.Equal(t, float64(3), got[0].Metadata["attempt"])

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ActionUserCreated, all[0].Action, "newest first")
}

func TestSQLiteStoreFilters(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		outcome := OutcomeSuccess
		if i%2 == 0 {
			outcome = OutcomeFailure
		}
		require.NoError(t, store.Record(ctx, &Activity{
			UserID:    "u1",
			Action:    ActionLogin,
			Outcome:   outcome,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	failure := OutcomeFailure
	got, err := store.List(ctx, Filter{Outcome: &failure})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.List(ctx, Filter{Offset: 4})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	since := now.Add(3 * time.Minute)
	count, err := store.CountSince(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStoreStats(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, &Activity{UserID: "u1", Action: ActionLogin, Outcome: OutcomeFailure, Timestamp: now}))
	require.NoError(t, store.Record(ctx, &Activity{UserID: "u1", Action: ActionLogin, Timestamp: now}))
	require.NoError(t, store.Record(ctx, &Activity{UserID: "u2", Action: ActionUserDeleted, Timestamp: now}))

	stats, err := store.Stats(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRecords)
	assert.Equal(t, int64(2), stats.RecordsByAction[ActionLogin])
	assert.Equal(t, int64(1), stats.RecordsByOutcome[OutcomeFailure])
	assert.Equal(t, int64(2), stats.UniqueUsers)
	assert.Equal(t, int64(1), stats.FailedLogins)
}

func TestSQLiteStoreCleanup(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, &Activity{Action: ActionLogin, Timestamp: now.AddDate(0, 0, -100)}))
	require.NoError(t, store.Record(ctx, &Activity{Action: ActionLogin, Timestamp: now}))

	removed, err := store.Cleanup(ctx, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	_, err = store.Cleanup(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention days must be positive")
}

func TestSQLiteStoreQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLiteStoreWithDB(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(fmt.Errorf("disk I/O error"))
	_, err = store.CountSince(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count activities")

	assert.NoError(t, mock.ExpectationsWereMet())
}
