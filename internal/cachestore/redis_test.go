package cachestore

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: make(map[string][]byte)}
}

func (b *memoryBlobs) PutBlob(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memoryBlobs) GetBlob(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (b *memoryBlobs) RemovePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
		}
	}
	return nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStoragePutAndMatchInline(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStorage(newRedis(t), nil)

	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "GET http://origin.test/app.js", snapshot("console.log(1)")))

	got, err := c.Match(ctx, "GET http://origin.test/app.js")
	require.NoError(t, err)
	assert.Equal(t, []byte("console.log(1)"), got.Body)
	assert.Equal(t, "text/javascript", got.Header.Get("Content-Type"))
	assert.Equal(t, TypeBasic, got.Type)

	_, err = c.Match(ctx, "GET http://origin.test/missing.js")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorageBodiesGoToBlobStore(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobs()
	s := NewRedisStorage(newRedis(t), blobs)

	c, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, c.PutAll(ctx, map[string]*Snapshot{
		"GET /a": snapshot("aaa"),
		"GET /b": snapshot("bbb"),
	}))
	assert.Len(t, blobs.objects, 2)

	got, err := c.Match(ctx, "GET /b")
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), got.Body)

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /a", "GET /b"}, keys)

	removed, err := s.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, blobs.objects)
}

func TestRedisStorageGenerationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStorage(newRedis(t), nil)

	old, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, old.Put(ctx, "GET /a", snapshot("a")))
	_, err = s.Open(ctx, "v2")
	require.NoError(t, err)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, keys)

	removed, err := s.Delete(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = old.Match(ctx, "GET /a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, old.Put(ctx, "GET /a", snapshot("a")), ErrGenerationDeleted)

	has, err := s.Has(ctx, "v2")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRedisStorageWriteIntoDeletedGenerationLeavesNoBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobs()
	s := NewRedisStorage(newRedis(t), blobs)

	gen, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	_, err = s.Delete(ctx, "v1")
	require.NoError(t, err)

	err = gen.Put(ctx, "GET http://school.test/app.js", snapshot("late write"))
	assert.ErrorIs(t, err, ErrGenerationDeleted)
	assert.Empty(t, blobs.objects)

	has, err := s.Has(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRedisStorageDiscardsBlobsWhenIndexWriteLosesRace(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobs()
	s := NewRedisStorage(newRedis(t), blobs)

	gen, err := s.Open(ctx, "v1")
	require.NoError(t, err)
	c := gen.(*redisCache)

	_, blobKey, err := c.encode(ctx, "GET http://school.test/app.js", snapshot("body"))
	require.NoError(t, err)
	require.Len(t, blobs.objects, 1)

	c.discardBlobs(ctx, []string{blobKey})
	assert.Empty(t, blobs.objects)
}
