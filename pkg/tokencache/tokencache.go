// Package tokencache shares short-lived OAuth tokens between server instances
// through redis, so each instance does not mint its own.
package tokencache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

var ErrMiss = errors.New("tokencache: miss")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// MemoryStore is a process-local Store, used when redis is not configured.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
}

type memItem struct {
	value    string
	expireAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memItem)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok || (!it.expireAt.IsZero() && time.Now().After(it.expireAt)) {
		delete(s.items, key)
		return "", ErrMiss
	}
	return it.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := memItem{value: value}
	if ttl > 0 {
		it.expireAt = time.Now().Add(ttl)
	}
	s.items[key] = it
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// expiryMargin keeps a cached token from being handed out right before it expires.
const expiryMargin = time.Minute

type source struct {
	store Store
	key   string
	base  oauth2.TokenSource

	mu  sync.Mutex
	cur *oauth2.Token
}

// NewSource wraps base so tokens are read from and written to store under key.
// Store failures fall back to base.
func NewSource(store Store, key string, base oauth2.TokenSource) oauth2.TokenSource {
	return &source{store: store, key: key, base: base}
}

func (s *source) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cur.Valid() {
		return s.cur, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if raw, err := s.store.Get(ctx, s.key); err == nil {
		var tok oauth2.Token
		if json.Unmarshal([]byte(raw), &tok) == nil && tok.Valid() {
			s.cur = &tok
			return s.cur, nil
		}
	}

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if ttl := time.Until(tok.Expiry) - expiryMargin; ttl > 0 {
		if b, err := json.Marshal(tok); err == nil {
			_ = s.store.Set(ctx, s.key, string(b), ttl)
		}
	}
	s.cur = tok
	return tok, nil
}
