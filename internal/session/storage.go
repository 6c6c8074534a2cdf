package session

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the slot holding the serialized logged in user.
const DefaultKey = "sarthi_logged_user"

// Storage is a string keyed slot store; Get returns ErrSlotNotFound for an
// absent key.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type MemoryStorage struct {
	mu    sync.RWMutex
	slots map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{slots: make(map[string]string)}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.slots[key]
	if !ok {
		return "", ErrSlotNotFound
	}
	return v, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.slots[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.slots, key)
	s.mu.Unlock()
	return nil
}

// RedisStorage scopes slots to one browser context:
// ctx:<contextID>:<key>.
type RedisStorage struct {
	client    *redis.Client
	contextID string
}

func NewRedisStorage(client *redis.Client, contextID string) *RedisStorage {
	return &RedisStorage{client: client, contextID: contextID}
}

func (s *RedisStorage) slot(key string) string {
	return "ctx:" + s.contextID + ":" + key
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.slot(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSlotNotFound
	}
	return v, err
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.slot(key), value, 0).Err()
}

func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.slot(key)).Err()
}
