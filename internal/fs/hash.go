package fs

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashPrefix identifies the digest algorithm in stored content hashes.
const HashPrefix = "xxh64:"

// HashContent computes the content hash used to detect duplicate documents.
func HashContent(content []byte) string {
	return fmt.Sprintf("%s%016x", HashPrefix, xxhash.Sum64(content))
}
