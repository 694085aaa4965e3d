package session

import "time"

// Status is a session lifecycle state. Expired and revoked are terminal;
// a session never transitions out of either.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Session is a single authenticated session record.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Status       Status     `json:"status"`
	IPAddress    string     `json:"ip_address,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastActivity time.Time  `json:"last_activity"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Terminal reports whether the session is in a terminal state.
func (s *Session) Terminal() bool {
	return s.Status == StatusExpired || s.Status == StatusRevoked
}

// ActiveAt reports whether the session is usable at the given instant:
// still marked active and not past its expiry, even if the sweep has not
// run yet.
func (s *Session) ActiveAt(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}
