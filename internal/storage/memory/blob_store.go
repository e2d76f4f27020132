package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BlobStore keeps objects in memory. Useful for tests and local runs
// where a bucket is not available.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewBlobStore constructs a BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

// PutObject stores the object and returns a mem:// URI for it.
func (s *BlobStore) PutObject(_ context.Context, key string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading object body: %w", err)
	}
	_ = contentType
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "mem://" + key, nil
}

// GetObject returns a stored object's bytes.
func (s *BlobStore) GetObject(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
