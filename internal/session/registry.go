package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StorageFactory returns the slot storage of one browser context.
type StorageFactory func(contextID string) Storage

type registryEntry struct {
	controller *Controller
	lastSeen   time.Time
}

// Registry holds one started controller per browser context. Controllers
// idle for longer than the idle TTL are evicted and rebuilt from their slot
// on the next request.
type Registry struct {
	factory StorageFactory
	key     string
	idleTTL time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry builds a registry. A non-positive idleTTL disables eviction.
func NewRegistry(factory StorageFactory, key string, idleTTL time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		factory: factory,
		key:     key,
		idleTTL: idleTTL,
		log:     log,
		now:     time.Now,
		entries: make(map[string]*registryEntry),
	}
}

// Get returns the controller for contextID, creating and starting it on
// first use. The slot is read without holding the registry lock; when two
// requests race, the first controller inserted wins.
func (r *Registry) Get(ctx context.Context, contextID string) (*Controller, error) {
	if c, ok := r.lookup(contextID); ok {
		return c, nil
	}

	c := NewController(r.factory(contextID), r.key, r.log.With().Str("context_id", contextID).Logger())
	if _, err := c.Start(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[contextID]; ok {
		existing.lastSeen = r.now()
		return existing.controller, nil
	}
	r.entries[contextID] = &registryEntry{controller: c, lastSeen: r.now()}
	return c, nil
}

func (r *Registry) lookup(contextID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[contextID]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.controller, true
}

func (r *Registry) Forget(contextID string) {
	r.mu.Lock()
	r.forget(contextID)
	r.mu.Unlock()
}

// forget requires r.mu.
func (r *Registry) forget(contextID string) {
	delete(r.entries, contextID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// EvictIdle forgets every controller not used within the idle TTL and
// returns how many were dropped.
func (r *Registry) EvictIdle() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			r.forget(id)
			evicted++
		}
	}
	return evicted
}

// Run evicts idle controllers until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTTL <= 0 {
		return
	}
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(); n > 0 {
				r.log.Debug().Int("evicted", n).Int("live", r.Len()).Msg("idle session controllers evicted")
			}
		}
	}
}
