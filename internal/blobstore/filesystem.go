package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"mindcare-go/internal/offline"
)

// FileSystemStore is a filesystem-based implementation of offline.BlobStore.
// Blobs are stored as files named by the SHA-256 of their key:
//
//	<root>/
//	  blobs/
//	    <sha256(key)>
type FileSystemStore struct {
	root     string
	blobsDir string
}

// NewFileSystemStore creates a blob store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving blob store root: %w", err)
	}
	blobsDir := filepath.Join(abs, "blobs")
	if err := os.MkdirAll(blobsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blobs directory: %w", err)
	}

	return &FileSystemStore{
		root:     abs,
		blobsDir: blobsDir,
	}, nil
}

func (s *FileSystemStore) path(key string) string {
	return filepath.Join(s.blobsDir, objectName(key))
}

// PutBlob stores size bytes from r under key, replacing any previous blob.
func (s *FileSystemStore) PutBlob(ctx context.Context, key string, r io.Reader, size int64) error {
	return s.writeFile(s.path(key), r, size)
}

// GetBlob writes the blob stored under key to w.
func (s *FileSystemStore) GetBlob(ctx context.Context, key string, w io.Writer) error {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", offline.ErrBlobNotFound, key)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

// HasBlob reports whether key is stored.
func (s *FileSystemStore) HasBlob(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking blob: %w", err)
}

// DeleteBlob removes key. A missing blob is not an error.
func (s *FileSystemStore) DeleteBlob(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}

// ObjectURL returns a file:// URL of the stored blob.
func (s *FileSystemStore) ObjectURL(ctx context.Context, key string) (string, error) {
	ok, err := s.HasBlob(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", offline.ErrBlobNotFound, key)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(s.path(key))}
	return u.String(), nil
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{s.root, s.blobsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("blob store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("blob store path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to destPath using atomic write (temp file + rename).
func (s *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements offline.BlobStore interface
var _ offline.BlobStore = (*FileSystemStore)(nil)
