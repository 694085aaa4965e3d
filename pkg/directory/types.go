package directory

import (
	"fmt"
	"time"
)

// Role represents a user's dashboard role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// ValidRoles lists the accepted role values.
func ValidRoles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleAnalyst, RoleViewer}
}

// Status represents a user's account status.
type Status string

const (
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusSuspended           Status = "suspended"
	StatusPendingVerification Status = "pending_verification"

	// StatusLocked is declared but reserved; no code path produces it.
	StatusLocked Status = "locked"
)

// ValidStatuses lists the accepted status values.
func ValidStatuses() []Status {
	return []Status{StatusActive, StatusInactive, StatusSuspended, StatusPendingVerification, StatusLocked}
}

// SubscriptionTier represents subscription plan tiers.
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierPro        SubscriptionTier = "pro"
	TierEnterprise SubscriptionTier = "enterprise"
)

// SubscriptionStatus represents the billing state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Security is a user's security sub-record.
//
// FailedLoginAttempts is informational: the security monitor derives
// lockouts from the activity log, not from this counter. SessionTimeout is
// stored per user but sessions are minted with a fixed engine-wide TTL;
// the field is retained until product decides which one is authoritative.
type Security struct {
	FailedLoginAttempts int            `json:"failed_login_attempts"`
	AccountLockedUntil  *time.Time     `json:"account_locked_until,omitempty"`
	SessionTimeout      time.Duration  `json:"session_timeout"`
	SuspendReason       string         `json:"suspend_reason,omitempty"`
}

// Subscription is a user's subscription sub-record.
type Subscription struct {
	Tier   SubscriptionTier   `json:"tier"`
	Status SubscriptionStatus `json:"status"`
}

// User is an identity record.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	FullName     string       `json:"full_name,omitempty"`
	Role         Role         `json:"role"`
	Status       Status       `json:"status"`
	Permissions  []string     `json:"permissions"`
	Groups       []string     `json:"groups"`
	Security     Security     `json:"security"`
	Subscription Subscription `json:"subscription"`
	LoginCount   int          `json:"login_count"`
	LastLoginAt  *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// HasGroup reports whether the user holds the given group.
func (u *User) HasGroup(groupID string) bool {
	for _, g := range u.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// HasPermission reports whether the user's permission set contains the ID.
func (u *User) HasPermission(permissionID string) bool {
	for _, p := range u.Permissions {
		if p == permissionID {
			return true
		}
	}
	return false
}

// Group is a named bundle of permissions and member users.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	Members     []string  `json:"members"`
	AutoAssign  bool      `json:"auto_assign"`
	Rules       []Rule    `json:"rules,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasMember reports whether the user is in the group's member list.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// CreateUserRequest carries caller-supplied fields for CreateUser.
// Zero values fall back to defaults.
type CreateUserRequest struct {
	Email          string             `json:"email"`
	FullName       string             `json:"full_name,omitempty"`
	Role           Role               `json:"role,omitempty"`
	Status         Status             `json:"status,omitempty"`
	Tier           SubscriptionTier   `json:"tier,omitempty"`
	TierStatus     SubscriptionStatus `json:"tier_status,omitempty"`
	SessionTimeout time.Duration      `json:"session_timeout,omitempty"`
}

// UserPatch carries partial updates for UpdateUser. Nil fields are
// left unchanged.
type UserPatch struct {
	Email          *string             `json:"email,omitempty"`
	FullName       *string             `json:"full_name,omitempty"`
	Role           *Role               `json:"role,omitempty"`
	Status         *Status             `json:"status,omitempty"`
	Tier           *SubscriptionTier   `json:"tier,omitempty"`
	TierStatus     *SubscriptionStatus `json:"tier_status,omitempty"`
	SessionTimeout *time.Duration      `json:"session_timeout,omitempty"`
}

// CreateGroupRequest carries fields for CreateGroup.
type CreateGroupRequest struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
	AutoAssign  bool     `json:"auto_assign"`
	Rules       []Rule   `json:"rules,omitempty"`
}

// ListFilter selects users for ListUsers. Zero values mean "no constraint".
type ListFilter struct {
	Role    Role
	Status  Status
	GroupID string
	Tier    SubscriptionTier
	Search  string // case-insensitive substring match on email and full name
	Offset  int
	Limit   int
}

// ListResult is a page of users plus the total match count.
type ListResult struct {
	Users []*User `json:"users"`
	Total int     `json:"total"`
}

// UserCounts aggregates the user population for system stats.
type UserCounts struct {
	Total    int                      `json:"total"`
	ByRole   map[Role]int             `json:"by_role"`
	ByStatus map[Status]int           `json:"by_status"`
	ByTier   map[SubscriptionTier]int `json:"by_tier"`
}

// ValidationError reports a structurally invalid request. It is returned
// synchronously and never retried; unknown-ID conditions are not
// validation errors and are reported through ok-style returns instead.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
