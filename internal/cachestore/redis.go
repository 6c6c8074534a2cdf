package cachestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	generationsKey   = "offline:generations"
	generationPrefix = "offline:gen:"
)

// RedisStorage keeps the generation index in a sorted set (scored by
// creation time) and each generation's entries in one hash.
type RedisStorage struct {
	client *redis.Client
	blobs  BlobStore
}

// NewRedisStorage returns a redis backed Storage. blobs may be nil, in which
// case bodies are stored inline in the hash.
func NewRedisStorage(client *redis.Client, blobs BlobStore) *RedisStorage {
	return &RedisStorage{client: client, blobs: blobs}
}

func generationKey(tag string) string {
	return generationPrefix + tag
}

func (s *RedisStorage) Open(ctx context.Context, tag string) (Cache, error) {
	err := s.client.ZAddNX(ctx, generationsKey, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: tag,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("open generation %s: %w", tag, err)
	}
	return &redisCache{storage: s, tag: tag}, nil
}

func (s *RedisStorage) Has(ctx context.Context, tag string) (bool, error) {
	_, err := s.client.ZScore(ctx, generationsKey, tag).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup generation %s: %w", tag, err)
	}
	return true, nil
}

func (s *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	tags, err := s.client.ZRange(ctx, generationsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return tags, nil
}

func (s *RedisStorage) Delete(ctx context.Context, tag string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, generationsKey, tag)
		pipe.Del(ctx, generationKey(tag))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete generation %s: %w", tag, err)
	}

	if s.blobs != nil {
		if err := s.blobs.RemovePrefix(ctx, tag+"/"); err != nil {
			return removed.Val() > 0, fmt.Errorf("remove blobs for %s: %w", tag, err)
		}
	}
	return removed.Val() > 0, nil
}

type entryRecord struct {
	URL      string       `json:"url"`
	Status   int          `json:"status"`
	Header   http.Header  `json:"header"`
	Type     ResponseType `json:"type"`
	StoredAt time.Time    `json:"storedAt"`
	Body     []byte       `json:"body,omitempty"`
	BlobKey  string       `json:"blobKey,omitempty"`
}

type redisCache struct {
	storage *RedisStorage
	tag     string
}

func (c *redisCache) Tag() string { return c.tag }

func (c *redisCache) blobKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return c.tag + "/" + hex.EncodeToString(sum[:])
}

func (c *redisCache) Match(ctx context.Context, key string) (*Snapshot, error) {
	raw, err := c.storage.client.HGet(ctx, generationKey(c.tag), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", key, err)
	}

	var rec entryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}

	body := rec.Body
	if rec.BlobKey != "" {
		if c.storage.blobs == nil {
			return nil, fmt.Errorf("entry %s references blob %s but no blob store is configured", key, rec.BlobKey)
		}
		body, err = c.storage.blobs.GetBlob(ctx, rec.BlobKey)
		if err != nil {
			return nil, fmt.Errorf("load body %s: %w", rec.BlobKey, err)
		}
	}

	return &Snapshot{
		URL:      rec.URL,
		Status:   rec.Status,
		Header:   rec.Header,
		Body:     body,
		Type:     rec.Type,
		StoredAt: rec.StoredAt,
	}, nil
}

func (c *redisCache) Put(ctx context.Context, key string, snap *Snapshot) error {
	return c.PutAll(ctx, map[string]*Snapshot{key: snap})
}

func (c *redisCache) PutAll(ctx context.Context, entries map[string]*Snapshot) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Bodies go to the blob store before the index write, so refuse early
	// when the generation is already gone.
	live, err := c.storage.Has(ctx, c.tag)
	if err != nil {
		return err
	}
	if !live {
		return ErrGenerationDeleted
	}

	fields := make([]any, 0, len(entries)*2)
	var uploaded []string
	for _, key := range keys {
		encoded, blobKey, err := c.encode(ctx, key, entries[key])
		if blobKey != "" {
			uploaded = append(uploaded, blobKey)
		}
		if err != nil {
			c.discardBlobs(ctx, uploaded)
			return err
		}
		fields = append(fields, key, encoded)
	}

	// Writes into a generation deleted in the meantime would resurrect an
	// orphaned hash, so the index membership check and the write share a watch.
	err = c.storage.client.Watch(ctx, func(tx *redis.Tx) error {
		_, err := tx.ZScore(ctx, generationsKey, c.tag).Result()
		if errors.Is(err, redis.Nil) {
			return ErrGenerationDeleted
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, generationKey(c.tag), fields...)
			return nil
		})
		return err
	}, generationsKey)
	if errors.Is(err, ErrGenerationDeleted) {
		c.discardBlobs(ctx, uploaded)
	}
	return err
}

// discardBlobs removes bodies uploaded for a write that never reached the
// index. Blob keys have a fixed length, so each key is its own prefix.
func (c *redisCache) discardBlobs(ctx context.Context, blobKeys []string) {
	for _, key := range blobKeys {
		_ = c.storage.blobs.RemovePrefix(ctx, key)
	}
}

func (c *redisCache) encode(ctx context.Context, key string, snap *Snapshot) ([]byte, string, error) {
	rec := entryRecord{
		URL:      snap.URL,
		Status:   snap.Status,
		Header:   snap.Header,
		Type:     snap.Type,
		StoredAt: snap.StoredAt,
	}
	if c.storage.blobs != nil {
		rec.BlobKey = c.blobKey(key)
		if err := c.storage.blobs.PutBlob(ctx, rec.BlobKey, snap.Body, snap.Header.Get("Content-Type")); err != nil {
			return nil, "", fmt.Errorf("store body %s: %w", key, err)
		}
	} else {
		rec.Body = snap.Body
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return nil, rec.BlobKey, fmt.Errorf("encode entry %s: %w", key, err)
	}
	return encoded, rec.BlobKey, nil
}

func (c *redisCache) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.storage.client.HKeys(ctx, generationKey(c.tag)).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", c.tag, err)
	}
	sort.Strings(keys)
	return keys, nil
}
