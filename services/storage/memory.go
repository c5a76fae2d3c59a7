package storagesvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core/upload"
)

// MemoryObject is an object held by MemoryStore.
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps objects in memory. It backs the API in tests and when no bucket is configured.
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]MemoryObject
}

var _ upload.ObjectStore = (*MemoryStore)(nil)

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{baseURL: baseURL, objects: make(map[string]MemoryObject)}
}

func (s *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return errors.Wrap(err, "reading object")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = MemoryObject{Data: buf.Bytes(), ContentType: contentType}
	return nil
}

func (s *MemoryStore) presign(method, key string, expiry time.Duration) string {
	return fmt.Sprintf("%s/%s?method=%s&expires=%d", s.baseURL, key, method, int(expiry.Seconds()))
}

func (s *MemoryStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return s.presign("GET", key, expiry), nil
}

func (s *MemoryStore) PresignPut(_ context.Context, key, contentType string, expiry time.Duration) (string, error) {
	u := s.presign("PUT", key, expiry)
	if contentType != "" {
		u += "&contentType=" + url.QueryEscape(contentType)
	}
	return u, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) Get(key string) (MemoryObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}
