package prompt

import (
	"context"
	"sort"
	"sync"
)

// Store is the injected persistence boundary for prompt configurations.
// Lookups are exact-match only; fallback lives in Resolve.
type Store interface {
	Get(ctx context.Context, key Key) (Config, bool, error)
	Set(ctx context.Context, key Key, cfg Config) error
}

// MemoryStore is an isolated in-process Store. The zero value is not usable;
// call NewMemoryStore.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]Config)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Config, bool, error) {
	s.mu.RLock()
	cfg, ok := s.configs[key.String()]
	s.mu.RUnlock()
	if !ok {
		return Config{}, false, nil
	}
	return cfg.Clone(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key Key, cfg Config) error {
	if err := key.Validate(); err != nil {
		return err
	}
	cfg.Key = key
	normalized, err := cfg.Normalize()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.configs[key.String()] = normalized
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys() []Key {
	s.mu.RLock()
	out := make([]Key, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg.Key)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
