package bulk

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/directory"
)

// fakeAdmin implements UserAdmin over a plain map.
type fakeAdmin struct {
	mu    sync.Mutex
	users map[string]*directory.User

	suspended map[string]string
	activated []string
	deleted   []string
	updated   []string
}

func newFakeAdmin(ids ...string) *fakeAdmin {
	a := &fakeAdmin{
		users:     make(map[string]*directory.User),
		suspended: make(map[string]string),
	}
	for _, id := range ids {
		a.users[id] = &directory.User{
			ID:     id,
			Email:  id + "@example.com",
			Role:   directory.RoleViewer,
			Status: directory.StatusActive,
		}
	}
	return a
}

func (a *fakeAdmin) SuspendUser(ctx context.Context, id, reason string, duration time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[id]; !ok {
		return false
	}
	a.suspended[id] = reason
	return true
}

func (a *fakeAdmin) ActivateUser(ctx context.Context, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[id]; !ok {
		return false
	}
	a.activated = append(a.activated, id)
	return true
}

func (a *fakeAdmin) DeleteUser(ctx context.Context, id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[id]; !ok {
		return false
	}
	delete(a.users, id)
	a.deleted = append(a.deleted, id)
	return true
}

func (a *fakeAdmin) UpdateUser(ctx context.Context, id string, patch directory.UserPatch) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[id]
	if !ok {
		return false, nil
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	a.updated = append(a.updated, id)
	return true, nil
}

func (a *fakeAdmin) GetUser(id string) (*directory.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func newTestOrchestrator(admin UserAdmin) (*Orchestrator, *activity.MemoryStore) {
	store := activity.NewMemoryStore()
	return NewOrchestrator(OrchestratorConfig{
		Admin:    admin,
		Recorder: store,
		Delay:    time.Millisecond,
	}), store
}

func startAndWait(t *testing.T, o *Orchestrator, opType OperationType, targets []string, payload Payload) *Operation {
	t.Helper()
	ctx := context.Background()
	op, err := o.Start(ctx, opType, targets, payload)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := o.Wait(waitCtx, op.ID)
	require.NoError(t, err)
	return done
}

func TestBulkSuspendContinuesPastFailures(t *testing.T) {
	admin := newFakeAdmin("u1", "u2", "u3")
	o, store := newTestOrchestrator(admin)

	targets := []string{"u1", "ghost-1", "u2", "ghost-2", "u3"}
	done := startAndWait(t, o, TypeSuspend, targets, SuspendPayload{Reason: "cleanup"})

	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 5, done.Processed)
	assert.Equal(t, 3, done.Succeeded)
	assert.Equal(t, 2, done.Failed)
	require.Len(t, done.Errors, 2)
	assert.Equal(t, "ghost-1", done.Errors[0].UserID)
	assert.Equal(t, "ghost-2", done.Errors[1].UserID)
	assert.Equal(t, "cleanup", admin.suspended["u1"])
	require.NotNil(t, done.CompletedAt)

	records, err := store.List(context.Background(), activity.Filter{
		Actions: []activity.Action{activity.ActionBulkOperation},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0].Metadata["status"])
}

func TestBulkActivateAndDelete(t *testing.T) {
	admin := newFakeAdmin("u1", "u2")
	o, _ := newTestOrchestrator(admin)

	done := startAndWait(t, o, TypeActivate, []string{"u1", "u2"}, nil)
	assert.Equal(t, 2, done.Succeeded)
	assert.ElementsMatch(t, []string{"u1", "u2"}, admin.activated)

	done = startAndWait(t, o, TypeDelete, []string{"u1"}, nil)
	assert.Equal(t, 1, done.Succeeded)
	assert.Equal(t, []string{"u1"}, admin.deleted)

	// Deleting the same target again fails per-item, not per-batch.
	done = startAndWait(t, o, TypeDelete, []string{"u1", "u2"}, nil)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 1, done.Succeeded)
	assert.Equal(t, 1, done.Failed)
}

func TestBulkUpdate(t *testing.T) {
	admin := newFakeAdmin("u1", "u2")
	o, _ := newTestOrchestrator(admin)

	role := directory.RoleAnalyst
	done := startAndWait(t, o, TypeUpdate, []string{"u1", "u2"}, UpdatePayload{
		Patch: directory.UserPatch{Role: &role},
	})

	assert.Equal(t, 2, done.Succeeded)
	u, _ := admin.GetUser("u1")
	assert.Equal(t, directory.RoleAnalyst, u.Role)
}

func TestBulkExport(t *testing.T) {
	admin := newFakeAdmin("u1", "u2")
	o, _ := newTestOrchestrator(admin)

	done := startAndWait(t, o, TypeExport, []string{"u1", "u2", "ghost"}, ExportPayload{Format: ExportJSON})

	assert.Equal(t, 2, done.Succeeded)
	assert.Equal(t, 1, done.Failed)
	require.NotEmpty(t, done.Output)

	var users []*directory.User
	require.NoError(t, json.Unmarshal(done.Output, &users))
	require.Len(t, users, 2)

	csvDone := startAndWait(t, o, TypeExport, []string{"u1"}, ExportPayload{Format: ExportCSV})
	lines := strings.Split(strings.TrimSpace(string(csvDone.Output)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,email"))
	assert.Contains(t, lines[1], "u1@example.com")
}

func TestBulkValidation(t *testing.T) {
	o, _ := newTestOrchestrator(newFakeAdmin())
	ctx := context.Background()

	_, err := o.Start(ctx, "reboot", []string{"u1"}, nil)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)

	_, err = o.Start(ctx, TypeSuspend, nil, nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "target_ids", verr.Field)

	_, err = o.Start(ctx, TypeUpdate, []string{"u1"}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payload", verr.Field)

	_, err = o.Start(ctx, TypeExport, []string{"u1"}, ExportPayload{Format: "xml"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payload.format", verr.Field)

	_, err = o.Start(ctx, TypeActivate, []string{"u1"}, SuspendPayload{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payload", verr.Field)

	// Declared but not runnable.
	_, err = o.Start(ctx, TypeCreate, []string{"u1"}, nil)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
}

func TestBulkWireValues(t *testing.T) {
	assert.Equal(t, "pending", string(StatusPending))
	assert.Equal(t, "in_progress", string(StatusInProgress))
	assert.Equal(t, "completed", string(StatusCompleted))
	assert.Equal(t, "failed", string(StatusFailed))
	assert.Equal(t, "cancelled", string(StatusCancelled))

	assert.Contains(t, ValidTypes(), TypeCreate)
	assert.Contains(t, ValidTypes(), TypeSuspend)
	assert.Contains(t, ValidTypes(), TypeExport)

	assert.True(t, StatusFailed.Finished())
	assert.False(t, StatusInProgress.Finished())
}

func TestBulkCancel(t *testing.T) {
	admin := newFakeAdmin("u1", "u2", "u3", "u4", "u5")
	store := activity.NewMemoryStore()
	o := NewOrchestrator(OrchestratorConfig{
		Admin:    admin,
		Recorder: store,
		Delay:    50 * time.Millisecond,
	})
	ctx := context.Background()

	op, err := o.Start(ctx, TypeSuspend, []string{"u1", "u2", "u3", "u4", "u5"}, SuspendPayload{})
	require.NoError(t, err)

	// Let at least one item land before cancelling.
	require.Eventually(t, func() bool {
		snap, ok := o.Get(op.ID)
		return ok && snap.Processed >= 1
	}, 5*time.Second, time.Millisecond)

	require.True(t, o.Cancel(op.ID))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := o.Wait(waitCtx, op.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, done.Status)
	assert.Less(t, done.Processed, 5)
	require.NotNil(t, done.CompletedAt)

	// Cancelling a finished operation reports false.
	assert.False(t, o.Cancel(op.ID))
	assert.False(t, o.Cancel("missing"))
}

func TestBulkGetAndList(t *testing.T) {
	admin := newFakeAdmin("u1")
	o, _ := newTestOrchestrator(admin)

	_, ok := o.Get("missing")
	assert.False(t, ok)

	first := startAndWait(t, o, TypeActivate, []string{"u1"}, nil)
	second := startAndWait(t, o, TypeSuspend, []string{"u1"}, nil)

	got, ok := o.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)

	ops := o.List()
	require.Len(t, ops, 2)
	ids := []string{ops[0].ID, ops[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestBulkProgressMonotone(t *testing.T) {
	admin := newFakeAdmin("u1", "u2", "u3")
	o, _ := newTestOrchestrator(admin)
	ctx := context.Background()

	op, err := o.Start(ctx, TypeActivate, []string{"u1", "u2", "u3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, op.Status)
	assert.Zero(t, op.Progress)

	last := 0
	require.Eventually(t, func() bool {
		snap, ok := o.Get(op.ID)
		require.True(t, ok)
		require.GreaterOrEqual(t, snap.Progress, last)
		last = snap.Progress
		return snap.Status == StatusCompleted
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 100, last)
}
