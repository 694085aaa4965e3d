package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	redisKeyPrefix = "aegis:session:"
	redisUserIndex = "aegis:session:user:"
	redisAllIndex  = "aegis:session:index"
)

// RedisStore keeps sessions in Redis so multiple engine instances can
// share them. Each record is a JSON value under aegis:session:<id>, with
// set indexes per user and a global set for the sweep.
type RedisStore struct {
	client *redis.Client

	// retention bounds how long terminal records linger. Zero keeps
	// records until the sweep or a cascade deletes them.
	retention time.Duration
}

// RedisStoreOption customizes a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithRetention sets a Redis TTL applied to each session key so stale
// records age out even if no sweep runs.
func WithRetention(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.retention = d }
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, opts ...RedisStoreOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session, or (nil, nil) when the key is absent.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Put writes the record and maintains both indexes.
func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+sess.ID, raw, s.retention)
	pipe.SAdd(ctx, redisUserIndex+sess.UserID, sess.ID)
	pipe.SAdd(ctx, redisAllIndex, sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes the record and its index entries.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+id)
	pipe.SRem(ctx, redisAllIndex, id)
	if sess != nil {
		pipe.SRem(ctx, redisUserIndex+sess.UserID, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return nil
}

// ListByUser returns every stored session for the user. Index entries
// whose record has aged out are pruned as they are encountered.
func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.client.SMembers(ctx, redisUserIndex+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list user sessions: %w", err)
	}
	return s.collect(ctx, ids, redisUserIndex+userID)
}

// ListAll returns every stored session.
func (s *RedisStore) ListAll(ctx context.Context) ([]*Session, error) {
	ids, err := s.client.SMembers(ctx, redisAllIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions: %w", err)
	}
	return s.collect(ctx, ids, redisAllIndex)
}

func (s *RedisStore) collect(ctx context.Context, ids []string, indexKey string) ([]*Session, error) {
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			s.client.SRem(ctx, indexKey, id)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
