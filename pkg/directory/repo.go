package directory

import (
	"sort"
	"sync"
)

// UserRepository isolates user storage from business logic. The default
// implementation is an in-memory map; the interface exists so a durable
// backend can be substituted without touching the Service.
type UserRepository interface {
	Get(id string) (*User, bool)
	Put(u *User)
	Delete(id string) bool
	List() []*User
	Count() int
}

// GroupRepository isolates group storage from business logic.
type GroupRepository interface {
	Get(id string) (*Group, bool)
	Put(g *Group)
	Delete(id string) bool
	List() []*Group
	Count() int
}

// MemoryUserRepository is a map-backed UserRepository.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewMemoryUserRepository creates an empty user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*User)}
}

// Get returns the stored record for id.
func (r *MemoryUserRepository) Get(id string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u, ok
}

// Put inserts or replaces a record.
func (r *MemoryUserRepository) Put(u *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// Delete removes a record, reporting whether it existed.
func (r *MemoryUserRepository) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return false
	}
	delete(r.users, id)
	return true
}

// List returns all records sorted by creation time, oldest first.
func (r *MemoryUserRepository) List() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of records.
func (r *MemoryUserRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// MemoryGroupRepository is a map-backed GroupRepository.
type MemoryGroupRepository struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

// NewMemoryGroupRepository creates an empty group repository.
func NewMemoryGroupRepository() *MemoryGroupRepository {
	return &MemoryGroupRepository{groups: make(map[string]*Group)}
}

// Get returns the stored record for id.
func (r *MemoryGroupRepository) Get(id string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	return g, ok
}

// Put inserts or replaces a record.
func (r *MemoryGroupRepository) Put(g *Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[g.ID] = g
}

// Delete removes a record, reporting whether it existed.
func (r *MemoryGroupRepository) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return false
	}
	delete(r.groups, id)
	return true
}

// List returns all records sorted by ID.
func (r *MemoryGroupRepository) List() []*Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of records.
func (r *MemoryGroupRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}
