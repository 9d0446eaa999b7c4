package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"mindcare-go/internal/offline"
)

// MemoryStore is an in-memory implementation of offline.BlobStore.
// It is useful for tests and for devices configured without media storage.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	blobs map[string][]byte // object name -> content
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

// PutBlob stores size bytes from r under key.
func (m *MemoryStore) PutBlob(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[objectName(key)] = data
	return nil
}

// GetBlob writes the blob stored under key to w.
func (m *MemoryStore) GetBlob(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.blobs[objectName(key)]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", offline.ErrBlobNotFound, key)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// HasBlob reports whether key is stored.
func (m *MemoryStore) HasBlob(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[objectName(key)]
	return ok, nil
}

// DeleteBlob removes key if present.
func (m *MemoryStore) DeleteBlob(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, objectName(key))
	return nil
}

// ObjectURL returns a memory:// URL naming the stored object.
func (m *MemoryStore) ObjectURL(ctx context.Context, key string) (string, error) {
	ok, _ := m.HasBlob(ctx, key)
	if !ok {
		return "", fmt.Errorf("%w: %s", offline.ErrBlobNotFound, key)
	}
	return "memory://" + objectName(key), nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemoryStore implements offline.BlobStore interface
var _ offline.BlobStore = (*MemoryStore)(nil)
