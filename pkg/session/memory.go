package session

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed Store for single-process deployments and
// tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

// Get returns a copy of the session, or (nil, nil) when absent.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

// Put inserts or replaces a session.
func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[s.ID]; ok && old.UserID != s.UserID {
		delete(m.byUser[old.UserID], s.ID)
	}
	m.sessions[s.ID] = cloneSession(s)
	if m.byUser[s.UserID] == nil {
		m.byUser[s.UserID] = make(map[string]struct{})
	}
	m.byUser[s.UserID][s.ID] = struct{}{}
	return nil
}

// Delete removes a session. Deleting a missing ID is a no-op.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	delete(m.byUser[s.UserID], id)
	return nil
}

// ListByUser returns copies of every session held by the user.
func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		out = append(out, cloneSession(m.sessions[id]))
	}
	return out, nil
}

// ListAll returns copies of every stored session.
func (m *MemoryStore) ListAll(ctx context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

func cloneSession(s *Session) *Session {
	cp := *s
	if s.RevokedAt != nil {
		at := *s.RevokedAt
		cp.RevokedAt = &at
	}
	return &cp
}
