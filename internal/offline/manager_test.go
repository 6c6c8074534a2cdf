package offline

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarthi/gateway/internal/cachestore"
)

var errOffline = errors.New("dial tcp: connection refused")

// fakeNetwork answers from a fixed table and counts calls per URL.
type fakeNetwork struct {
	mu      sync.Mutex
	offline bool
	routes  map[string]*cachestore.Snapshot
	calls   map[string]int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		routes: map[string]*cachestore.Snapshot{},
		calls:  map[string]int{},
	}
}

func (n *fakeNetwork) serve(rawURL string, status int, body string, typ cachestore.ResponseType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[rawURL] = &cachestore.Snapshot{
		URL:    rawURL,
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte(body),
		Type:   typ,
	}
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	n.offline = v
	n.mu.Unlock()
}

func (n *fakeNetwork) count(rawURL string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[rawURL]
}

func (n *fakeNetwork) Fetch(_ context.Context, req *Request) (*cachestore.Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := req.URL.String()
	n.calls[u]++
	if n.offline {
		return nil, errOffline
	}
	if snap, ok := n.routes[u]; ok {
		return snap.Clone(), nil
	}
	return &cachestore.Snapshot{URL: u, Status: http.StatusNotFound, Header: http.Header{}, Type: cachestore.TypeBasic}, nil
}

const origin = "http://school.test"

func coreNetwork() *fakeNetwork {
	n := newFakeNetwork()
	n.serve(origin+"/", http.StatusOK, "<html>root</html>", cachestore.TypeBasic)
	n.serve(origin+"/index.html", http.StatusOK, "<html>index</html>", cachestore.TypeBasic)
	n.serve(origin+"/manifest.json", http.StatusOK, `{"name":"sarthi"}`, cachestore.TypeBasic)
	return n
}

func newTestManager(t *testing.T, storage cachestore.Storage, network Fetcher, tag string) *Manager {
	t.Helper()
	u, err := url.Parse(origin)
	require.NoError(t, err)
	return NewManager(storage, network, Options{
		Tag:          tag,
		Origin:       u,
		CoreManifest: []string{"/", "/index.html", "/manifest.json"},
	}, zerolog.Nop())
}

func mustRequest(t *testing.T, rawURL string, mode Mode) *Request {
	t.Helper()
	req, err := NewRequest(http.MethodGet, rawURL, mode)
	require.NoError(t, err)
	return req
}

func installed(t *testing.T, storage cachestore.Storage, network Fetcher, tag string) *Manager {
	t.Helper()
	ctx := context.Background()
	m := newTestManager(t, storage, network, tag)
	require.NoError(t, m.Install(ctx))
	require.NoError(t, m.Activate(ctx))
	return m
}

func TestInstallStoresCoreManifest(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	m := newTestManager(t, storage, coreNetwork(), "v5")

	require.NoError(t, m.Install(ctx))
	assert.Equal(t, PhaseInstalled, m.Phase())
	assert.True(t, m.SkipWaiting())
	assert.False(t, m.Controlling())

	cache, err := storage.Open(ctx, "v5")
	require.NoError(t, err)
	for _, path := range []string{"/", "/index.html", "/manifest.json"} {
		snap, err := cache.Match(ctx, "GET "+origin+path)
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, snap.Status)
	}
}

func TestInstallIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	network := coreNetwork()
	network.serve(origin+"/manifest.json", http.StatusInternalServerError, "boom", cachestore.TypeBasic)
	m := newTestManager(t, storage, network, "v5")

	err := m.Install(ctx)
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.Equal(t, PhaseRedundant, m.Phase())
	assert.False(t, m.SkipWaiting())

	has, err := storage.Has(ctx, "v5")
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, m.Activate(ctx), ErrNotInstalled)

	network.serve(origin+"/manifest.json", http.StatusOK, "{}", cachestore.TypeBasic)
	require.NoError(t, m.Install(ctx))
	assert.Equal(t, PhaseInstalled, m.Phase())
}

func TestActivateDeletesOtherGenerations(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	network := coreNetwork()
	network.serve(origin+"/app.js", http.StatusOK, "old", cachestore.TypeBasic)

	old := installed(t, storage, network, "v4")
	_, err := old.Fetch(ctx, mustRequest(t, origin+"/app.js", ModeNoCORS))
	require.NoError(t, err)
	old.Drain()

	next := installed(t, storage, network, "v5")
	assert.Equal(t, PhaseActivated, next.Phase())
	assert.True(t, next.Controlling())

	tags, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v5"}, tags)

	network.serve(origin+"/app.js", http.StatusOK, "new", cachestore.TypeBasic)
	snap, err := next.Fetch(ctx, mustRequest(t, origin+"/app.js", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, "new", string(snap.Body))
}

func TestFetchIsCacheFirst(t *testing.T) {
	ctx := context.Background()
	network := coreNetwork()
	network.serve(origin+"/app.js", http.StatusOK, "v1", cachestore.TypeBasic)
	m := installed(t, cachestore.NewMemoryStorage(), network, "v5")

	first, err := m.Fetch(ctx, mustRequest(t, origin+"/app.js", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(first.Body))
	m.Drain()

	network.serve(origin+"/app.js", http.StatusOK, "v2", cachestore.TypeBasic)
	second, err := m.Fetch(ctx, mustRequest(t, origin+"/app.js#frag", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, "v1", string(second.Body))
	assert.Equal(t, 1, network.count(origin+"/app.js"))

	_, err = m.Fetch(ctx, mustRequest(t, origin+"/index.html", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, 1, network.count(origin+"/index.html"), "core paths are served from install")
}

func TestFetchDoesNotCacheUncleanResponses(t *testing.T) {
	ctx := context.Background()
	network := coreNetwork()
	network.serve(origin+"/missing.png", http.StatusNotFound, "", cachestore.TypeBasic)
	network.serve(origin+"/partial", http.StatusPartialContent, "p", cachestore.TypeBasic)
	network.serve("http://cdn.test/lib.js", http.StatusOK, "lib", cachestore.TypeCORS)
	m := installed(t, cachestore.NewMemoryStorage(), network, "v5")

	for _, u := range []string{origin + "/missing.png", origin + "/partial", "http://cdn.test/lib.js"} {
		for i := 0; i < 2; i++ {
			_, err := m.Fetch(ctx, mustRequest(t, u, ModeNoCORS))
			require.NoError(t, err)
			m.Drain()
		}
		assert.Equal(t, 2, network.count(u), u)
	}
}

func TestFetchSkipsCacheForNonGet(t *testing.T) {
	ctx := context.Background()
	network := coreNetwork()
	network.serve(origin+"/api/attendance", http.StatusOK, "ok", cachestore.TypeBasic)
	m := installed(t, cachestore.NewMemoryStorage(), network, "v5")

	for i := 0; i < 2; i++ {
		req, err := NewRequest(http.MethodPost, origin+"/api/attendance", ModeCORS)
		require.NoError(t, err)
		_, err = m.Fetch(ctx, req)
		require.NoError(t, err)
		m.Drain()
	}
	assert.Equal(t, 2, network.count(origin+"/api/attendance"))
}

func TestNavigationFallsBackToCachedIndex(t *testing.T) {
	ctx := context.Background()
	network := coreNetwork()
	m := installed(t, cachestore.NewMemoryStorage(), network, "v5")
	network.setOffline(true)

	snap, err := m.Fetch(ctx, mustRequest(t, origin+"/dashboard/fees", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, "<html>index</html>", string(snap.Body))
}

func TestNonNavigationFailurePropagates(t *testing.T) {
	ctx := context.Background()
	network := coreNetwork()
	m := installed(t, cachestore.NewMemoryStorage(), network, "v5")
	network.setOffline(true)

	snap, err := m.Fetch(ctx, mustRequest(t, origin+"/img/logo.png", ModeNoCORS))
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
	assert.ErrorIs(t, err, errOffline)
}

func TestNavigationWithoutCachedIndexPropagates(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	network := coreNetwork()
	u, err := url.Parse(origin)
	require.NoError(t, err)
	m := NewManager(storage, network, Options{
		Tag:          "v5",
		Origin:       u,
		CoreManifest: []string{"/manifest.json"},
	}, zerolog.Nop())
	require.NoError(t, m.Install(ctx))
	require.NoError(t, m.Activate(ctx))
	network.setOffline(true)

	_, err = m.Fetch(ctx, mustRequest(t, origin+"/", ModeNavigate))
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestFetchBeforeClaimBypassesCache(t *testing.T) {
	ctx := context.Background()
	network := coreNetwork()
	m := newTestManager(t, cachestore.NewMemoryStorage(), network, "v5")
	require.NoError(t, m.Install(ctx))

	_, err := m.Fetch(ctx, mustRequest(t, origin+"/index.html", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, 2, network.count(origin+"/index.html"))

	network.setOffline(true)
	_, err = m.Fetch(ctx, mustRequest(t, origin+"/index.html", ModeNavigate))
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestFetchIgnoresNonHTTPSchemes(t *testing.T) {
	m := installed(t, cachestore.NewMemoryStorage(), coreNetwork(), "v5")

	_, err := m.Fetch(context.Background(), mustRequest(t, "chrome-extension://abc/script.js", ModeNoCORS))
	assert.ErrorIs(t, err, ErrNotHandled)
}

func TestCacheWriteFailureStillReturnsResponse(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	network := coreNetwork()
	network.serve(origin+"/app.css", http.StatusOK, "body{}", cachestore.TypeBasic)
	m := installed(t, storage, network, "v5")

	// Dropping the live generation makes every later write fail.
	_, err := storage.Delete(ctx, "v5")
	require.NoError(t, err)

	snap, err := m.Fetch(ctx, mustRequest(t, origin+"/app.css", ModeNoCORS))
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(snap.Body))
	m.Drain()
}

func TestPurgeRefusesCurrentGeneration(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	_, err := storage.Open(ctx, "v3")
	require.NoError(t, err)
	m := installed(t, storage, coreNetwork(), "v5")

	_, err = m.Purge(ctx, "v5")
	assert.ErrorIs(t, err, ErrCurrentGeneration)

	removed, err := m.Purge(ctx, "v9")
	require.NoError(t, err)
	assert.False(t, removed)
}

type recordingJournal struct {
	mu     sync.Mutex
	events []string
}

func (j *recordingJournal) record(s string) error {
	j.mu.Lock()
	j.events = append(j.events, s)
	j.mu.Unlock()
	return nil
}

func (j *recordingJournal) GenerationInstalled(_ context.Context, tag string, _ []string) error {
	return j.record("installed:" + tag)
}

func (j *recordingJournal) GenerationActivated(_ context.Context, tag string) error {
	return j.record("activated:" + tag)
}

func (j *recordingJournal) GenerationDeleted(_ context.Context, tag string) error {
	return j.record("deleted:" + tag)
}

func TestJournalSeesDeletesBeforeActivation(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	_, err := storage.Open(ctx, "v4")
	require.NoError(t, err)

	journal := &recordingJournal{}
	u, err := url.Parse(origin)
	require.NoError(t, err)
	m := NewManager(storage, coreNetwork(), Options{
		Tag:          "v5",
		Origin:       u,
		CoreManifest: []string{"/index.html"},
		Journal:      journal,
	}, zerolog.Nop())
	require.NoError(t, m.Install(ctx))
	require.NoError(t, m.Activate(ctx))

	assert.Equal(t, []string{"installed:v5", "deleted:v4", "activated:v5"}, journal.events)
}

func TestSweepFromOlderManagerSparesNewerGeneration(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	network := coreNetwork()

	stale := newTestManager(t, storage, network, "sarthi-smart-offline-v5.0")
	require.NoError(t, stale.Install(ctx))
	fresh := installed(t, storage, network, "sarthi-smart-offline-v5.1")

	deleted, err := stale.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	tags, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sarthi-smart-offline-v5.1"}, tags)

	network.setOffline(true)
	snap, err := fresh.Fetch(ctx, mustRequest(t, origin+"/attendance", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, "<html>index</html>", string(snap.Body))
}

func TestOlderManagerCannotRemoveNewerGeneration(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	network := coreNetwork()

	old := installed(t, storage, network, "v5.0")
	next := newTestManager(t, storage, network, "v5.1")
	require.NoError(t, next.Install(ctx))

	deleted, err := old.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	_, err = old.Purge(ctx, "v5.1")
	assert.ErrorIs(t, err, ErrNewerGeneration)

	tags, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v5.0", "v5.1"}, tags)

	require.NoError(t, next.Activate(ctx))
	tags, err = storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v5.1"}, tags)
}

func TestSweepWithoutCurrentGenerationDeletesNothing(t *testing.T) {
	ctx := context.Background()
	storage := cachestore.NewMemoryStorage()
	_, err := storage.Open(ctx, "v4")
	require.NoError(t, err)

	m := newTestManager(t, storage, coreNetwork(), "v5")
	deleted, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	has, err := storage.Has(ctx, "v4")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestReinstallAfterActivationKeepsServing(t *testing.T) {
	ctx := context.Background()
	network := coreNetwork()
	m := installed(t, cachestore.NewMemoryStorage(), network, "v5")

	network.setOffline(true)
	err := m.Install(ctx)
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.Equal(t, PhaseActivated, m.Phase())
	assert.True(t, m.Controlling())

	snap, err := m.Fetch(ctx, mustRequest(t, origin+"/", ModeNavigate))
	require.NoError(t, err)
	assert.Equal(t, "<html>root</html>", string(snap.Body))

	network.setOffline(false)
	require.NoError(t, m.Install(ctx))
	assert.Equal(t, PhaseActivated, m.Phase())
}
