package cachesvc

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/learninghub/core/identity"
)

var nowFunc = time.Now // mockable

type entry struct {
	value   interface{}
	expires time.Time
}

// store is a map with per-entry expiry. Expired entries are dropped on read.
type store struct {
	mu      sync.Mutex
	entries map[string]entry
}

func newStore() *store {
	return &store{entries: make(map[string]entry)}
}

func (s *store) get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !nowFunc().Before(e.expires) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

func (s *store) set(key string, value interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expires: nowFunc().Add(ttl)}
}

func (s *store) delete(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
}

// MemoryPrincipalCache is the single process PrincipalCache used without Redis.
type MemoryPrincipalCache struct {
	store *store
	ttl   time.Duration
}

var _ identity.PrincipalCache = (*MemoryPrincipalCache)(nil)

func NewMemoryPrincipalCache(ttl time.Duration) *MemoryPrincipalCache {
	return &MemoryPrincipalCache{store: newStore(), ttl: ttl}
}

func (c *MemoryPrincipalCache) Get(_ context.Context, sub string) (identity.Principal, bool) {
	v, ok := c.store.get(sub)
	if !ok {
		return identity.Principal{}, false
	}
	return v.(identity.Principal), true
}

func (c *MemoryPrincipalCache) Set(_ context.Context, sub string, p identity.Principal) error {
	c.store.set(sub, p, c.ttl)
	return nil
}

func (c *MemoryPrincipalCache) Delete(_ context.Context, subs ...string) error {
	c.store.delete(subs...)
	return nil
}

type MemoryCodeStore struct {
	store *store
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{store: newStore()}
}

func (s *MemoryCodeStore) SaveCode(_ context.Context, key, code string, ttl time.Duration) error {
	s.store.set(key, code, ttl)
	return nil
}

func (s *MemoryCodeStore) GetCode(_ context.Context, key string) (string, bool, error) {
	v, ok := s.store.get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *MemoryCodeStore) DeleteCode(_ context.Context, key string) error {
	s.store.delete(key)
	return nil
}
