// Package contentstore keeps opaque blobs addressed by the SHA-256 of their
// bytes. Storing the same bytes twice yields the same id and one copy.
package contentstore

import (
	"crypto/sha256"
	"encoding/hex"

	"certify/pkg/domain"
)

// IDFor returns the content id of blob.
func IDFor(blob []byte) domain.ContentID {
	sum := sha256.Sum256(blob)
	return domain.ContentID(hex.EncodeToString(sum[:]))
}
