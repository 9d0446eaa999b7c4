package offline

import (
	"context"
	"io"
)

// BlobStore persists large binary payloads (audio, video, images) outside the
// structured database. Keys are the source URLs of the payloads.
type BlobStore interface {
	// PutBlob stores size bytes read from r under key, replacing any previous value.
	PutBlob(ctx context.Context, key string, r io.Reader, size int64) error

	// GetBlob writes the blob stored under key to w.
	// Returns ErrBlobNotFound if the key is absent.
	GetBlob(ctx context.Context, key string, w io.Writer) error

	// HasBlob reports whether a blob is stored under key.
	HasBlob(ctx context.Context, key string) (bool, error)

	// DeleteBlob removes the blob under key. Deleting a missing key is not an error.
	DeleteBlob(ctx context.Context, key string) error

	// ObjectURL returns a URL from which the stored blob can be read locally.
	ObjectURL(ctx context.Context, key string) (string, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
