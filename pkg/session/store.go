package session

import "context"

// Store persists session records. Implementations must treat a missing
// ID as (nil, nil) from Get rather than an error; errors are reserved
// for backend failures.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error

	// ListByUser returns every stored session for the user, including
	// terminal ones.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// ListAll returns every stored session. The expiry sweep walks this.
	ListAll(ctx context.Context) ([]*Session, error)

	Close() error
}
