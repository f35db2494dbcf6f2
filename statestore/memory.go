package statestore

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps the state in process. It is used for single instance deployments and tests.
type MemoryStore struct {
	// go-cache operations are individually atomic; the mutex keeps Incr's add-or-increment a single step.
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	switch value := v.(type) {
	case []byte:
		return value, nil
	case int64:
		return []byte(strconv.FormatInt(value, 10)), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.cache.Add(key, value, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64 = 1
	if v, ok := s.cache.Get(key); ok {
		if current, isInt := v.(int64); isInt {
			n = current + 1
		}
	}
	s.cache.Set(key, n, ttl)
	return n, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}
