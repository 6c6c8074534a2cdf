package cachestore

import (
	"context"
	"sort"
	"sync"
)

type MemoryStorage struct {
	mu    sync.RWMutex
	order []string
	gens  map[string]*memoryCache
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{gens: make(map[string]*memoryCache)}
}

func (s *MemoryStorage) Open(_ context.Context, tag string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.gens[tag]; ok {
		return c, nil
	}
	c := &memoryCache{tag: tag, entries: make(map[string]*Snapshot)}
	s.gens[tag] = c
	s.order = append(s.order, tag)
	return c, nil
}

func (s *MemoryStorage) Has(_ context.Context, tag string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.gens[tag]
	return ok, nil
}

func (s *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...), nil
}

func (s *MemoryStorage) Delete(_ context.Context, tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.gens[tag]
	if !ok {
		return false, nil
	}
	c.detach()
	delete(s.gens, tag)
	for i, t := range s.order {
		if t == tag {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

type memoryCache struct {
	tag      string
	mu       sync.RWMutex
	entries  map[string]*Snapshot
	detached bool
}

func (c *memoryCache) Tag() string { return c.tag }

func (c *memoryCache) Match(_ context.Context, key string) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return snap.Clone(), nil
}

func (c *memoryCache) Put(_ context.Context, key string, snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detached {
		return ErrGenerationDeleted
	}
	c.entries[key] = snap.Clone()
	return nil
}

func (c *memoryCache) PutAll(_ context.Context, entries map[string]*Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detached {
		return ErrGenerationDeleted
	}
	for key, snap := range entries {
		c.entries[key] = snap.Clone()
	}
	return nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *memoryCache) detach() {
	c.mu.Lock()
	c.detached = true
	c.entries = map[string]*Snapshot{}
	c.mu.Unlock()
}
