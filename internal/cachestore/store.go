// Package cachestore holds versioned generations of captured HTTP responses.
//
// A Storage owns generations keyed by tag; a Cache is one generation's
// key → Snapshot map. Entries are replaced, never edited.
package cachestore

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrNotFound          = errors.New("cache entry not found")
	ErrGenerationDeleted = errors.New("cache generation deleted")
)

type ResponseType string

const (
	TypeBasic  ResponseType = "basic"
	TypeCORS   ResponseType = "cors"
	TypeOpaque ResponseType = "opaque"
	TypeError  ResponseType = "error"
)

// Snapshot is a fully buffered response.
type Snapshot struct {
	URL      string       `json:"url"`
	Status   int          `json:"status"`
	Header   http.Header  `json:"header"`
	Body     []byte       `json:"body,omitempty"`
	Type     ResponseType `json:"type"`
	StoredAt time.Time    `json:"storedAt"`
}

// OK mirrors the fetch API's ok flag.
func (s *Snapshot) OK() bool {
	return s != nil && s.Status >= 200 && s.Status < 300
}

// Cacheable reports whether the snapshot is a clean same-origin success.
func (s *Snapshot) Cacheable() bool {
	return s != nil && s.Status == http.StatusOK && s.Type == TypeBasic
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Header = s.Header.Clone()
	if s.Body != nil {
		out.Body = append([]byte(nil), s.Body...)
	}
	return &out
}

type Storage interface {
	// Open returns the generation for tag, creating it if absent.
	Open(ctx context.Context, tag string) (Cache, error)
	Has(ctx context.Context, tag string) (bool, error)
	// Keys lists generation tags in creation order.
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, tag string) (bool, error)
}

type Cache interface {
	Tag() string
	Match(ctx context.Context, key string) (*Snapshot, error)
	Put(ctx context.Context, key string, snap *Snapshot) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, entries map[string]*Snapshot) error
	Keys(ctx context.Context) ([]string, error)
}

// BlobStore keeps response bodies outside the entry index.
type BlobStore interface {
	PutBlob(ctx context.Context, key string, data []byte, contentType string) error
	GetBlob(ctx context.Context, key string) ([]byte, error)
	RemovePrefix(ctx context.Context, prefix string) error
}
