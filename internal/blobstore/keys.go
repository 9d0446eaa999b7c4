package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
)

// objectName maps a blob key (a source URL) to a fixed-length name safe for
// file systems and object stores.
func objectName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
