// Package offline serves the application shell and previously fetched assets
// cache-first out of a versioned cache generation.
//
// A Manager goes through install (fetch and store the core manifest),
// activate (drop every other generation, then claim clients) and then
// intercepts fetches. Staleness is resolved only by bumping the generation
// tag; entries carry no expiry.
package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"sarthi/gateway/internal/cachestore"
)

type Phase string

const (
	PhaseParsed     Phase = "parsed"
	PhaseInstalling Phase = "installing"
	PhaseInstalled  Phase = "installed"
	PhaseActivating Phase = "activating"
	PhaseActivated  Phase = "activated"
	PhaseRedundant  Phase = "redundant"
)

const DefaultFallbackPath = "/index.html"

// Journal is told about generation lifecycle changes. Failures are logged
// and never abort the lifecycle step.
type Journal interface {
	GenerationInstalled(ctx context.Context, tag string, corePaths []string) error
	GenerationActivated(ctx context.Context, tag string) error
	GenerationDeleted(ctx context.Context, tag string) error
}

type Options struct {
	Tag          string
	Origin       *url.URL
	CoreManifest []string
	FallbackPath string
	Journal      Journal
}

type Manager struct {
	storage cachestore.Storage
	fetcher Fetcher
	opts    Options
	log     zerolog.Logger

	mu          sync.RWMutex
	phase       Phase
	current     cachestore.Cache
	skipWaiting bool
	claimed     bool

	writes sync.WaitGroup
}

func NewManager(storage cachestore.Storage, fetcher Fetcher, opts Options, log zerolog.Logger) *Manager {
	if opts.FallbackPath == "" {
		opts.FallbackPath = DefaultFallbackPath
	}
	return &Manager{
		storage: storage,
		fetcher: fetcher,
		opts:    opts,
		log:     log.With().Str("component", "offline").Str("cache_tag", opts.Tag).Logger(),
		phase:   PhaseParsed,
	}
}

func (m *Manager) Tag() string {
	return m.opts.Tag
}

func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SkipWaiting reports whether install finished and asked to activate
// without waiting for existing clients to go away.
func (m *Manager) SkipWaiting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skipWaiting
}

// Controlling reports whether activation claimed clients; until then fetches
// bypass the cache.
func (m *Manager) Controlling() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claimed
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

func (m *Manager) resolve(path string) (*Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	return &Request{
		Method: http.MethodGet,
		URL:    m.opts.Origin.ResolveReference(ref),
		Mode:   ModeNoCORS,
		Header: http.Header{},
	}, nil
}

// Install fetches every core manifest path and stores them in the current
// generation. Nothing is stored unless every path succeeds. Re-running it
// after activation refreshes the generation without leaving the activated
// phase.
func (m *Manager) Install(ctx context.Context) error {
	m.mu.Lock()
	active := m.claimed
	if !active {
		m.phase = PhaseInstalling
	}
	m.mu.Unlock()

	entries := make(map[string]*cachestore.Snapshot, len(m.opts.CoreManifest))
	for _, path := range m.opts.CoreManifest {
		req, err := m.resolve(path)
		if err != nil {
			return m.failInstall(active, err)
		}
		snap, err := m.fetcher.Fetch(ctx, req)
		if err != nil {
			return m.failInstall(active, fmt.Errorf("fetch %s: %w", path, err))
		}
		if !snap.OK() {
			return m.failInstall(active, fmt.Errorf("fetch %s: status %d", path, snap.Status))
		}
		entries[req.Key()] = snap
	}

	cache, err := m.storage.Open(ctx, m.opts.Tag)
	if err != nil {
		return m.failInstall(active, err)
	}
	if err := cache.PutAll(ctx, entries); err != nil {
		return m.failInstall(active, fmt.Errorf("store core manifest: %w", err))
	}
	m.log.Info().Int("paths", len(entries)).Msg("opened cache for offline mode")

	if m.opts.Journal != nil {
		if err := m.opts.Journal.GenerationInstalled(ctx, m.opts.Tag, m.opts.CoreManifest); err != nil {
			m.log.Warn().Err(err).Msg("journal install failed")
		}
	}

	m.mu.Lock()
	m.current = cache
	if !m.claimed {
		m.phase = PhaseInstalled
	}
	m.skipWaiting = true
	m.mu.Unlock()
	return nil
}

// failInstall marks a first install redundant. An activated manager keeps
// serving its existing generation.
func (m *Manager) failInstall(active bool, err error) error {
	if !active {
		m.setPhase(PhaseRedundant)
	}
	m.log.Error().Err(err).Bool("activated", active).Msg("install failed")
	return fmt.Errorf("%w: %w", ErrInstallFailed, err)
}

// Activate deletes every generation older than the current one and only
// then claims clients.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNotInstalled
	}
	previous := m.phase
	m.phase = PhaseActivating
	m.mu.Unlock()

	if _, err := m.Sweep(ctx); err != nil {
		m.setPhase(previous)
		return fmt.Errorf("activate: %w", err)
	}

	if m.opts.Journal != nil {
		if err := m.opts.Journal.GenerationActivated(ctx, m.opts.Tag); err != nil {
			m.log.Warn().Err(err).Msg("journal activate failed")
		}
	}

	m.mu.Lock()
	m.claimed = true
	m.phase = PhaseActivated
	m.mu.Unlock()
	m.log.Info().Msg("activated and claimed clients")
	return nil
}

// Known reports whether a generation tagged tag exists in storage.
func (m *Manager) Known(ctx context.Context, tag string) (bool, error) {
	return m.storage.Has(ctx, tag)
}

// olderGenerations returns the tags created before the current one, oldest
// first. Generations created later belong to a newer deployment and are
// never returned. Without a current generation nothing is older.
func (m *Manager) olderGenerations(ctx context.Context) ([]string, error) {
	tags, err := m.storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for i, tag := range tags {
		if tag == m.opts.Tag {
			return tags[:i], nil
		}
	}
	return nil, nil
}

// Sweep deletes every generation created before the current one and returns
// the deleted tags.
func (m *Manager) Sweep(ctx context.Context) ([]string, error) {
	stale, err := m.olderGenerations(ctx)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, tag := range stale {
		m.log.Info().Str("stale_tag", tag).Msg("clearing old cache")
		removed, err := m.storage.Delete(ctx, tag)
		if err != nil {
			return deleted, fmt.Errorf("delete generation %s: %w", tag, err)
		}
		if !removed {
			continue
		}
		deleted = append(deleted, tag)
		if m.opts.Journal != nil {
			if err := m.opts.Journal.GenerationDeleted(ctx, tag); err != nil {
				m.log.Warn().Err(err).Str("stale_tag", tag).Msg("journal delete failed")
			}
		}
	}
	return deleted, nil
}

// Purge deletes a single generation older than the current one. Unknown
// tags report false.
func (m *Manager) Purge(ctx context.Context, tag string) (bool, error) {
	if tag == m.opts.Tag {
		return false, ErrCurrentGeneration
	}
	known, err := m.storage.Has(ctx, tag)
	if err != nil {
		return false, fmt.Errorf("purge %s: %w", tag, err)
	}
	if !known {
		return false, nil
	}
	stale, err := m.olderGenerations(ctx)
	if err != nil {
		return false, fmt.Errorf("purge %s: %w", tag, err)
	}
	if !slices.Contains(stale, tag) {
		return false, ErrNewerGeneration
	}

	removed, err := m.storage.Delete(ctx, tag)
	if err != nil {
		return false, fmt.Errorf("purge %s: %w", tag, err)
	}
	if removed && m.opts.Journal != nil {
		if err := m.opts.Journal.GenerationDeleted(ctx, tag); err != nil {
			m.log.Warn().Err(err).Str("stale_tag", tag).Msg("journal delete failed")
		}
	}
	return removed, nil
}

// Fetch answers req cache-first. Clean same-origin successes are written to
// the current generation in the background; the original response is
// returned either way.
func (m *Manager) Fetch(ctx context.Context, req *Request) (*cachestore.Snapshot, error) {
	if !req.HTTPScheme() {
		return nil, ErrNotHandled
	}

	m.mu.RLock()
	cache, claimed := m.current, m.claimed
	m.mu.RUnlock()

	if !claimed {
		snap, err := m.fetcher.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNetworkUnavailable, req.URL, err)
		}
		return snap, nil
	}

	key := req.Key()
	cacheable := req.Method == http.MethodGet
	if cacheable {
		snap, err := cache.Match(ctx, key)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, cachestore.ErrNotFound) {
			m.log.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		}
	}

	snap, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		return m.fallback(ctx, cache, req, err)
	}

	if !cacheable || !snap.Cacheable() {
		return snap, nil
	}

	clone := snap.Clone()
	m.writes.Add(1)
	go func() {
		defer m.writes.Done()
		if err := cache.Put(context.WithoutCancel(ctx), key, clone); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}()

	return snap, nil
}

func (m *Manager) fallback(ctx context.Context, cache cachestore.Cache, req *Request, cause error) (*cachestore.Snapshot, error) {
	failure := fmt.Errorf("%w: %s: %w", ErrNetworkUnavailable, req.URL, cause)
	if !req.Navigate() {
		return nil, failure
	}

	root, err := m.resolve(m.opts.FallbackPath)
	if err != nil {
		return nil, failure
	}
	snap, err := cache.Match(ctx, root.Key())
	if err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			m.log.Warn().Err(err).Msg("fallback lookup failed")
		}
		return nil, failure
	}
	m.log.Debug().Str("url", req.URL.String()).Msg("served offline fallback")
	return snap, nil
}

// Drain blocks until every background cache write has finished.
func (m *Manager) Drain() {
	m.writes.Wait()
}
