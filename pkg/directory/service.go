package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianhq/aegis/pkg/activity"
	"github.com/meridianhq/aegis/pkg/observability"
	"github.com/meridianhq/aegis/pkg/permissions"
)

const defaultSessionTimeout = 30 * time.Minute

// ServiceConfig configures a Service. Zero fields get sensible defaults.
type ServiceConfig struct {
	Users    UserRepository
	Groups   GroupRepository
	Registry *permissions.Registry
	Recorder activity.Recorder
	Logger   *observability.Logger

	// Clock is injectable for tests.
	Clock func() time.Time

	PermissionCacheSize int
	PermissionCacheTTL  time.Duration
}

// Service owns all user and group state. See the package comment for the
// invariants it maintains.
type Service struct {
	mu        sync.Mutex
	users     UserRepository
	groups    GroupRepository
	registry  *permissions.Registry
	recorder  activity.Recorder
	logger    *observability.Logger
	permCache *permissionCache
	now       func() time.Time
}

// NewService creates a directory service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Users == nil {
		cfg.Users = NewMemoryUserRepository()
	}
	if cfg.Groups == nil {
		cfg.Groups = NewMemoryGroupRepository()
	}
	if cfg.Registry == nil {
		cfg.Registry = permissions.DefaultRegistry()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = activity.NopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		users:     cfg.Users,
		groups:    cfg.Groups,
		registry:  cfg.Registry,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger,
		permCache: newPermissionCache(cfg.PermissionCacheSize, cfg.PermissionCacheTTL),
		now:       cfg.Clock,
	}
}

// Registry returns the permission catalog the service validates against.
func (s *Service) Registry() *permissions.Registry {
	return s.registry
}

// CreateUser constructs a user from defaults merged with the request,
// inserts it, and runs auto-assignment before returning.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, &ValidationError{Field: "email", Reason: "email is required"}
	}
	if req.Role == "" {
		req.Role = RoleViewer
	}
	if err := validateRole(req.Role); err != nil {
		return nil, err
	}
	if req.Status == "" {
		req.Status = StatusActive
	}
	if err := validateStatus(req.Status); err != nil {
		return nil, err
	}
	if req.Tier == "" {
		req.Tier = TierFree
	}
	if req.TierStatus == "" {
		req.TierStatus = SubscriptionActive
	}
	if req.SessionTimeout <= 0 {
		req.SessionTimeout = defaultSessionTimeout
	}

	now := s.now().UTC()
	u := &User{
		ID:          uuid.NewString(),
		Email:       req.Email,
		FullName:    req.FullName,
		Role:        req.Role,
		Status:      req.Status,
		Permissions: []string{},
		Groups:      []string{},
		Security: Security{
			SessionTimeout: req.SessionTimeout,
		},
		Subscription: Subscription{
			Tier:   req.Tier,
			Status: req.TierStatus,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.users.Put(u)
	assigned := s.autoAssignLocked(u)
	out := cloneUser(u)
	s.mu.Unlock()

	s.record(ctx, &activity.Activity{
		UserID:   u.ID,
		Action:   activity.ActionUserCreated,
		Resource: "user",
		Metadata: map[string]any{"role": string(u.Role), "auto_assigned_groups": assigned},
	})
	return out, nil
}

// UpdateUser merges the patch into the user. Unknown IDs return
// (nil, nil); malformed patch values return a validation error.
//
// Auto-assignment re-runs when role or subscription changed. The engine
// only ever adds rule-based memberships on update; it never removes one
// that no longer matches. That asymmetry is inherited behavior, kept
// deliberately.
func (s *Service) UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	if patch.Role != nil {
		if err := validateRole(*patch.Role); err != nil {
			return nil, err
		}
	}
	if patch.Status != nil {
		if err := validateStatus(*patch.Status); err != nil {
			return nil, err
		}
	}
	if patch.Email != nil && strings.TrimSpace(*patch.Email) == "" {
		return nil, &ValidationError{Field: "email", Reason: "email cannot be empty"}
	}

	s.mu.Lock()
	u, ok := s.users.Get(id)
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}

	reassign := false
	changed := make([]string, 0, 4)
	if patch.Email != nil && *patch.Email != u.Email {
		u.Email = *patch.Email
		changed = append(changed, "email")
	}
	if patch.FullName != nil && *patch.FullName != u.FullName {
		u.FullName = *patch.FullName
		changed = append(changed, "full_name")
	}
	if patch.Role != nil && *patch.Role != u.Role {
		u.Role = *patch.Role
		changed = append(changed, "role")
		reassign = true
	}
	if patch.Status != nil && *patch.Status != u.Status {
		u.Status = *patch.Status
		changed = append(changed, "status")
	}
	if patch.Tier != nil && *patch.Tier != u.Subscription.Tier {
		u.Subscription.Tier = *patch.Tier
		changed = append(changed, "subscription.tier")
		reassign = true
	}
	if patch.TierStatus != nil && *patch.TierStatus != u.Subscription.Status {
		u.Subscription.Status = *patch.TierStatus
		changed = append(changed, "subscription.status")
		reassign = true
	}
	if patch.SessionTimeout != nil && *patch.SessionTimeout > 0 {
		u.Security.SessionTimeout = *patch.SessionTimeout
	}

	u.UpdatedAt = s.now().UTC()
	s.users.Put(u)
	if reassign {
		s.autoAssignLocked(u)
	}
	out := cloneUser(u)
	s.mu.Unlock()

	s.record(ctx, &activity.Activity{
		UserID:   id,
		Action:   activity.ActionUserUpdated,
		Resource: "user",
		Metadata: map[string]any{"changed": changed},
	})
	return out, nil
}

// DeleteUser detaches the user from every group and removes the record.
// Unknown IDs return false with no mutation and no activity write.
// Session revocation for the deleted user is the caller's cascade.
func (s *Service) DeleteUser(ctx context.Context, id string) bool {
	s.mu.Lock()
	u, ok := s.users.Get(id)
	if !ok {
		s.mu.Unlock()
		return false
	}
	for _, groupID := range u.Groups {
		if g, ok := s.groups.Get(groupID); ok {
			g.Members = removeString(g.Members, id)
			s.groups.Put(g)
		}
	}
	s.users.Delete(id)
	s.permCache.invalidate(id)
	s.mu.Unlock()

	s.record(ctx, &activity.Activity{
		UserID:   id,
		Action:   activity.ActionUserDeleted,
		Resource: "user",
	})
	return true
}

// SuspendUser marks the user suspended, optionally locking the account
// until now+duration. Suspending an already-suspended user refreshes the
// reason and lock time. Unknown IDs return (nil, false).
func (s *Service) SuspendUser(ctx context.Context, id, reason string, duration time.Duration) (*User, bool) {
	s.mu.Lock()
	u, ok := s.users.Get(id)
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	now := s.now().UTC()
	u.Status = StatusSuspended
	u.Security.SuspendReason = reason
	if duration > 0 {
		until := now.Add(duration)
		u.Security.AccountLockedUntil = &until
	}
	u.UpdatedAt = now
	s.users.Put(u)
	out := cloneUser(u)
	s.mu.Unlock()

	meta := map[string]any{"reason": reason}
	if out.Security.AccountLockedUntil != nil {
		meta["locked_until"] = out.Security.AccountLockedUntil.Format(time.RFC3339)
	}
	s.record(ctx, &activity.Activity{
		UserID:   id,
		Action:   activity.ActionUserSuspended,
		Resource: "user",
		Metadata: meta,
	})
	return out, true
}

// ActivateUser restores a user to active, clears the account lock, and
// resets the failed-login counter. Unknown IDs return (nil, false).
func (s *Service) ActivateUser(ctx context.Context, id string) (*User, bool) {
	s.mu.Lock()
	u, ok := s.users.Get(id)
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	u.Status = StatusActive
	u.Security.AccountLockedUntil = nil
	u.Security.FailedLoginAttempts = 0
	u.Security.SuspendReason = ""
	u.UpdatedAt = s.now().UTC()
	s.users.Put(u)
	out := cloneUser(u)
	s.mu.Unlock()

	s.record(ctx, &activity.Activity{
		UserID:   id,
		Action:   activity.ActionUserActivated,
		Resource: "user",
	})
	return out, true
}

// NoteLogin bumps the user's login counter and last-login timestamp.
func (s *Service) NoteLogin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users.Get(id)
	if !ok {
		return false
	}
	now := s.now().UTC()
	u.LoginCount++
	u.LastLoginAt = &now
	s.users.Put(u)
	return true
}

// NoteFailedLogin bumps the informational failed-login counter. Lockout
// decisions are driven by the activity log, not this counter.
func (s *Service) NoteFailedLogin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users.Get(id)
	if !ok {
		return false
	}
	u.Security.FailedLoginAttempts++
	s.users.Put(u)
	return true
}

// GetUser returns a copy of the user record.
func (s *Service) GetUser(id string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users.Get(id)
	if !ok {
		return nil, false
	}
	return cloneUser(u), true
}

// ListUsers returns users matching the filter plus the total match count.
func (s *Service) ListUsers(filter ListFilter) ListResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]*User, 0)
	for _, u := range s.users.List() {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.GroupID != "" && !u.HasGroup(filter.GroupID) {
			continue
		}
		if filter.Tier != "" && u.Subscription.Tier != filter.Tier {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Email), search) &&
			!strings.Contains(strings.ToLower(u.FullName), search) {
			continue
		}
		matched = append(matched, u)
	}

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	page := make([]*User, len(matched))
	for i, u := range matched {
		page[i] = cloneUser(u)
	}
	return ListResult{Users: page, Total: total}
}

// Counts aggregates the user population.
func (s *Service) Counts() UserCounts {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := UserCounts{
		ByRole:   make(map[Role]int),
		ByStatus: make(map[Status]int),
		ByTier:   make(map[SubscriptionTier]int),
	}
	for _, u := range s.users.List() {
		counts.Total++
		counts.ByRole[u.Role]++
		counts.ByStatus[u.Status]++
		counts.ByTier[u.Subscription.Tier]++
	}
	return counts
}

// CreateGroup validates and inserts a group. Permission IDs must exist in
// the catalog and rules must be structurally valid.
func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "name is required"}
	}
	for _, permID := range req.Permissions {
		if !s.registry.Has(permID) {
			return nil, &ValidationError{Field: "permissions", Reason: fmt.Sprintf("unknown permission %q", permID)}
		}
	}
	for _, rule := range req.Rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	if _, exists := s.groups.Get(id); exists {
		s.mu.Unlock()
		return nil, &ValidationError{Field: "id", Reason: fmt.Sprintf("group %q already exists", id)}
	}
	g := &Group{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Permissions: append([]string{}, req.Permissions...),
		Members:     []string{},
		AutoAssign:  req.AutoAssign,
		Rules:       append([]Rule{}, req.Rules...),
		CreatedAt:   s.now().UTC(),
	}
	s.groups.Put(g)
	out := cloneGroup(g)
	s.mu.Unlock()

	s.record(ctx, &activity.Activity{
		Action:   activity.ActionGroupCreated,
		Resource: "group",
		Metadata: map[string]any{"group_id": id, "auto_assign": req.AutoAssign},
	})
	return out, nil
}

// GetGroup returns a copy of the group record.
func (s *Service) GetGroup(id string) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups.Get(id)
	if !ok {
		return nil, false
	}
	return cloneGroup(g), true
}

// ListGroups returns copies of all groups.
func (s *Service) ListGroups() []*Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := s.groups.List()
	out := make([]*Group, len(groups))
	for i, g := range groups {
		out[i] = cloneGroup(g)
	}
	return out
}

// GroupCount returns the number of groups.
func (s *Service) GroupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups.Count()
}

// AddUserToGroup adds the membership edge on both sides and unions the
// group's permissions into the user's set. Re-adding is a no-op. Unknown
// user or group IDs return false.
func (s *Service) AddUserToGroup(ctx context.Context, userID, groupID string) bool {
	s.mu.Lock()
	u, ok := s.users.Get(userID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	g, ok := s.groups.Get(groupID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	if u.HasGroup(groupID) {
		s.mu.Unlock()
		return true
	}
	s.addMembershipLocked(u, g)
	s.mu.Unlock()

	s.record(ctx, &activity.Activity{
		UserID:   userID,
		Action:   activity.ActionGroupMemberAdded,
		Resource: "group",
		Metadata: map[string]any{"group_id": groupID},
	})
	return true
}

// RemoveUserFromGroup removes the membership edge on both sides and
// recomputes the user's permission set as the union over the remaining
// groups, so a permission shared with another held group survives.
// Returns false when no edge was removed.
func (s *Service) RemoveUserFromGroup(ctx context.Context, userID, groupID string) bool {
	s.mu.Lock()
	u, ok := s.users.Get(userID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	g, ok := s.groups.Get(groupID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	if !u.HasGroup(groupID) {
		s.mu.Unlock()
		return false
	}

	u.Groups = removeString(u.Groups, groupID)
	g.Members = removeString(g.Members, userID)
	u.Permissions = s.unionPermissionsLocked(u.Groups)
	u.UpdatedAt = s.now().UTC()
	s.users.Put(u)
	s.groups.Put(g)
	s.permCache.invalidate(userID)
	s.mu.Unlock()

	s.record(ctx, &activity.Activity{
		UserID:   userID,
		Action:   activity.ActionGroupMemberRemoved,
		Resource: "group",
		Metadata: map[string]any{"group_id": groupID},
	})
	return true
}

// HasPermission reports whether the user currently holds the permission.
// Results are memoized; membership mutations invalidate the entry.
func (s *Service) HasPermission(userID, permissionID string) bool {
	if set, ok := s.permCache.get(userID); ok {
		_, has := set[permissionID]
		return has
	}

	s.mu.Lock()
	u, ok := s.users.Get(userID)
	if !ok {
		s.mu.Unlock()
		return false
	}
	perms := append([]string{}, u.Permissions...)
	s.mu.Unlock()

	set := s.permCache.put(userID, perms)
	_, has := set[permissionID]
	return has
}

// AutoAssign evaluates every auto-assign group's rules against the user
// and joins each matching group. Returns the IDs of groups joined.
func (s *Service) AutoAssign(ctx context.Context, userID string) []string {
	s.mu.Lock()
	u, ok := s.users.Get(userID)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	assigned := s.autoAssignLocked(u)
	s.mu.Unlock()

	for _, groupID := range assigned {
		s.record(ctx, &activity.Activity{
			UserID:   userID,
			Action:   activity.ActionGroupMemberAdded,
			Resource: "group",
			Metadata: map[string]any{"group_id": groupID, "auto": true},
		})
	}
	return assigned
}

// autoAssignLocked joins the user to every auto-assign group whose rules
// all match. Groups are evaluated independently; a user may join several.
// Caller holds s.mu.
func (s *Service) autoAssignLocked(u *User) []string {
	var assigned []string
	for _, g := range s.groups.List() {
		if !g.AutoAssign {
			continue
		}
		if g.HasMember(u.ID) {
			continue
		}
		if !EvaluateRules(g.Rules, u) {
			continue
		}
		s.addMembershipLocked(u, g)
		assigned = append(assigned, g.ID)
	}
	return assigned
}

// addMembershipLocked adds the edge on both sides and unions the group's
// permissions into the user. Caller holds s.mu.
func (s *Service) addMembershipLocked(u *User, g *Group) {
	u.Groups = append(u.Groups, g.ID)
	g.Members = append(g.Members, u.ID)
	for _, permID := range g.Permissions {
		if !u.HasPermission(permID) {
			u.Permissions = append(u.Permissions, permID)
		}
	}
	u.UpdatedAt = s.now().UTC()
	s.users.Put(u)
	s.groups.Put(g)
	s.permCache.invalidate(u.ID)
}

// unionPermissionsLocked computes the union of permissions granted by the
// given groups. Caller holds s.mu.
func (s *Service) unionPermissionsLocked(groupIDs []string) []string {
	seen := make(map[string]struct{})
	union := []string{}
	for _, groupID := range groupIDs {
		g, ok := s.groups.Get(groupID)
		if !ok {
			continue
		}
		for _, permID := range g.Permissions {
			if _, dup := seen[permID]; !dup {
				seen[permID] = struct{}{}
				union = append(union, permID)
			}
		}
	}
	return union
}

func (s *Service) record(ctx context.Context, a *activity.Activity) {
	if err := s.recorder.Record(ctx, a); err != nil {
		s.logger.WithError(err).WithField("action", string(a.Action)).Warn("failed to record activity")
	}
}

func validateRole(r Role) error {
	for _, valid := range ValidRoles() {
		if r == valid {
			return nil
		}
	}
	return &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", r)}
}

func validateStatus(st Status) error {
	for _, valid := range ValidStatuses() {
		if st == valid {
			return nil
		}
	}
	return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", st)}
}

func cloneUser(u *User) *User {
	cp := *u
	cp.Permissions = append([]string{}, u.Permissions...)
	cp.Groups = append([]string{}, u.Groups...)
	if u.Security.AccountLockedUntil != nil {
		until := *u.Security.AccountLockedUntil
		cp.Security.AccountLockedUntil = &until
	}
	if u.LastLoginAt != nil {
		last := *u.LastLoginAt
		cp.LastLoginAt = &last
	}
	return &cp
}

func cloneGroup(g *Group) *Group {
	cp := *g
	cp.Permissions = append([]string{}, g.Permissions...)
	cp.Members = append([]string{}, g.Members...)
	cp.Rules = append([]Rule{}, g.Rules...)
	return &cp
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
