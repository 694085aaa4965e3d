package engine

import (
	"context"
	"time"

	"github.com/meridianhq/aegis/pkg/directory"
)

// CreateUser creates a user and runs auto-assignment.
func (e *Engine) CreateUser(ctx context.Context, req directory.CreateUserRequest) (*directory.User, error) {
	u, err := e.directory.CreateUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if n := len(u.Groups); n > 0 {
		e.metrics.AutoAssignsTotal.Add(float64(n))
	}
	e.refreshGauges(ctx)
	return u, nil
}

// GetUser returns the user, or (nil, false) when unknown.
func (e *Engine) GetUser(id string) (*directory.User, bool) {
	return e.directory.GetUser(id)
}

// GetUsers returns users matching the filter plus the total match count.
func (e *Engine) GetUsers(filter directory.ListFilter) directory.ListResult {
	return e.directory.ListUsers(filter)
}

// UpdateUser applies a partial update. Unknown IDs return (nil, nil).
func (e *Engine) UpdateUser(ctx context.Context, id string, patch directory.UserPatch) (*directory.User, error) {
	before, ok := e.directory.GetUser(id)
	u, err := e.directory.UpdateUser(ctx, id, patch)
	if err != nil || u == nil {
		return u, err
	}
	if ok && len(u.Groups) > len(before.Groups) {
		e.metrics.AutoAssignsTotal.Add(float64(len(u.Groups) - len(before.Groups)))
	}
	e.refreshGauges(ctx)
	return u, nil
}

// DeleteUser removes the user, detaching group memberships and revoking
// every session they hold. Unknown IDs return false with no mutation.
func (e *Engine) DeleteUser(ctx context.Context, id string) bool {
	if _, ok := e.directory.GetUser(id); !ok {
		return false
	}
	if n, err := e.sessions.RevokeAllForUser(ctx, id); err != nil {
		e.logger.WithError(err).WithField("user_id", id).Warn("failed to revoke sessions for deleted user")
	} else if n > 0 {
		e.metrics.SessionsRevoked.Add(float64(n))
	}
	ok := e.directory.DeleteUser(ctx, id)
	e.refreshGauges(ctx)
	return ok
}

// SuspendUser suspends the user and revokes their active sessions.
// Unknown IDs return false.
func (e *Engine) SuspendUser(ctx context.Context, id, reason string, duration time.Duration) bool {
	if _, ok := e.directory.SuspendUser(ctx, id, reason, duration); !ok {
		return false
	}
	if n, err := e.sessions.RevokeAllForUser(ctx, id); err != nil {
		e.logger.WithError(err).WithField("user_id", id).Warn("failed to revoke sessions for suspended user")
	} else if n > 0 {
		e.metrics.SessionsRevoked.Add(float64(n))
	}
	e.refreshGauges(ctx)
	return true
}

// ActivateUser restores a suspended or inactive user. Unknown IDs return
// false.
func (e *Engine) ActivateUser(ctx context.Context, id string) bool {
	_, ok := e.directory.ActivateUser(ctx, id)
	if ok {
		e.refreshGauges(ctx)
	}
	return ok
}

// CreateGroup creates a permission group.
func (e *Engine) CreateGroup(ctx context.Context, req directory.CreateGroupRequest) (*directory.Group, error) {
	g, err := e.directory.CreateGroup(ctx, req)
	if err != nil {
		return nil, err
	}
	e.refreshGauges(ctx)
	return g, nil
}

// GetGroup returns the group, or (nil, false) when unknown.
func (e *Engine) GetGroup(id string) (*directory.Group, bool) {
	return e.directory.GetGroup(id)
}

// ListGroups returns all groups.
func (e *Engine) ListGroups() []*directory.Group {
	return e.directory.ListGroups()
}

// AddUserToGroup grants the user the group's permissions.
func (e *Engine) AddUserToGroup(ctx context.Context, userID, groupID string) bool {
	return e.directory.AddUserToGroup(ctx, userID, groupID)
}

// RemoveUserFromGroup removes the membership and recomputes the user's
// permission set from their remaining groups.
func (e *Engine) RemoveUserFromGroup(ctx context.Context, userID, groupID string) bool {
	return e.directory.RemoveUserFromGroup(ctx, userID, groupID)
}

// HasPermission reports whether the user currently holds the permission.
func (e *Engine) HasPermission(userID, permissionID string) bool {
	return e.directory.HasPermission(userID, permissionID)
}
