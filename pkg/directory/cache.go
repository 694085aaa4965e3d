package directory

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultPermCacheSize = 4096
	defaultPermCacheTTL  = 5 * time.Minute
)

// permissionCache memoizes a user's resolved permission set so hot
// permission checks skip the directory lock. Entries are invalidated on
// any membership or permission mutation for that user and expire on a
// short TTL as a backstop.
type permissionCache struct {
	lru *expirable.LRU[string, map[string]struct{}]
}

func newPermissionCache(size int, ttl time.Duration) *permissionCache {
	if size <= 0 {
		size = defaultPermCacheSize
	}
	if ttl <= 0 {
		ttl = defaultPermCacheTTL
	}
	return &permissionCache{
		lru: expirable.NewLRU[string, map[string]struct{}](size, nil, ttl),
	}
}

func (c *permissionCache) get(userID string) (map[string]struct{}, bool) {
	return c.lru.Get(userID)
}

func (c *permissionCache) put(userID string, perms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	c.lru.Add(userID, set)
	return set
}

func (c *permissionCache) invalidate(userID string) {
	c.lru.Remove(userID)
}
