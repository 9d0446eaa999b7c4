package blobstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"mindcare-go/internal/offline"
)

// storeContract runs the behavior every offline.BlobStore must share.
func storeContract(t *testing.T, newStore func(t *testing.T) offline.BlobStore) {
	ctx := context.Background()
	const key = "https://cdn.example.com/media/breathing.mp3"

	t.Run("put then get returns content", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutBlob(ctx, key, strings.NewReader("audio-bytes"), 11); err != nil {
			t.Fatalf("PutBlob() error = %v", err)
		}

		var buf bytes.Buffer
		if err := s.GetBlob(ctx, key, &buf); err != nil {
			t.Fatalf("GetBlob() error = %v", err)
		}
		if buf.String() != "audio-bytes" {
			t.Errorf("GetBlob() = %q, want %q", buf.String(), "audio-bytes")
		}

		ok, err := s.HasBlob(ctx, key)
		if err != nil {
			t.Fatalf("HasBlob() error = %v", err)
		}
		if !ok {
			t.Error("HasBlob() = false, want true")
		}
	})

	t.Run("put replaces previous content", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutBlob(ctx, key, strings.NewReader("first"), 5); err != nil {
			t.Fatalf("PutBlob() error = %v", err)
		}
		if err := s.PutBlob(ctx, key, strings.NewReader("second"), 6); err != nil {
			t.Fatalf("PutBlob() error = %v", err)
		}

		var buf bytes.Buffer
		if err := s.GetBlob(ctx, key, &buf); err != nil {
			t.Fatalf("GetBlob() error = %v", err)
		}
		if buf.String() != "second" {
			t.Errorf("GetBlob() = %q, want %q", buf.String(), "second")
		}
	})

	t.Run("size mismatch is rejected", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutBlob(ctx, key, strings.NewReader("short"), 100); err == nil {
			t.Fatal("PutBlob() expected size mismatch error")
		}
		ok, _ := s.HasBlob(ctx, key)
		if ok {
			t.Error("HasBlob() = true after failed put")
		}
	})

	t.Run("missing blob", func(t *testing.T) {
		s := newStore(t)

		var buf bytes.Buffer
		err := s.GetBlob(ctx, "https://cdn.example.com/missing", &buf)
		if !errors.Is(err, offline.ErrBlobNotFound) {
			t.Errorf("GetBlob() error = %v, want ErrBlobNotFound", err)
		}
		ok, err := s.HasBlob(ctx, "https://cdn.example.com/missing")
		if err != nil || ok {
			t.Errorf("HasBlob() = %v, %v, want false, nil", ok, err)
		}
		if err := s.DeleteBlob(ctx, "https://cdn.example.com/missing"); err != nil {
			t.Errorf("DeleteBlob() on missing key error = %v", err)
		}
	})

	t.Run("delete removes blob", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutBlob(ctx, key, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("PutBlob() error = %v", err)
		}
		if err := s.DeleteBlob(ctx, key); err != nil {
			t.Fatalf("DeleteBlob() error = %v", err)
		}
		ok, _ := s.HasBlob(ctx, key)
		if ok {
			t.Error("HasBlob() = true after delete")
		}
	})

	t.Run("object url for stored blob", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutBlob(ctx, key, strings.NewReader("x"), 1); err != nil {
			t.Fatalf("PutBlob() error = %v", err)
		}
		u, err := s.ObjectURL(ctx, key)
		if err != nil {
			t.Fatalf("ObjectURL() error = %v", err)
		}
		if u == "" || u == key {
			t.Errorf("ObjectURL() = %q, want a local URL", u)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		s := newStore(t)
		if err := s.ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) offline.BlobStore {
		return NewMemoryStore()
	})
}

func TestFileSystemStore(t *testing.T) {
	storeContract(t, func(t *testing.T) offline.BlobStore {
		s, err := NewFileSystemStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemStore() error = %v", err)
		}
		return s
	})
}

func TestObjectName(t *testing.T) {
	a := objectName("https://cdn.example.com/a.mp4")
	b := objectName("https://cdn.example.com/b.mp4")

	if len(a) != 64 {
		t.Errorf("len(objectName()) = %d, want 64", len(a))
	}
	if a == b {
		t.Error("objectName() collided for different keys")
	}
	if a != objectName("https://cdn.example.com/a.mp4") {
		t.Error("objectName() is not deterministic")
	}
}
