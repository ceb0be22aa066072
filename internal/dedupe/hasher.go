// Package dedupe computes content hashes used to recognize identical media payloads.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DefaultChunkSize is the read buffer used when hashing.
const DefaultChunkSize = 8192

// Hasher computes a streaming SHA-256 over a fixed-size read buffer,
// so peak memory does not depend on the size of the content.
type Hasher struct {
	chunkSize int
}

// NewHasher returns a Hasher reading chunkSize bytes at a time. Non-positive sizes use [DefaultChunkSize].
func NewHasher(chunkSize int) *Hasher {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Hasher{chunkSize: chunkSize}
}

// HashReader returns the hex digest of everything read from r.
func (h *Hasher) HashReader(r io.Reader) (string, int64, error) {
	digest := sha256.New()
	buf := make([]byte, h.chunkSize)

	n, err := io.CopyBuffer(digest, onlyReader{r}, buf)
	if err != nil {
		return "", n, fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), n, nil
}

// HashFile returns the hex digest and size of the file at path.
func (h *Hasher) HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	return h.HashReader(f)
}

// onlyReader hides WriterTo so io.CopyBuffer always uses the fixed buffer.
type onlyReader struct {
	io.Reader
}
