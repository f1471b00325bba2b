package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Algorithm selects the content digest.
type Algorithm string

const (
	// SHA256 is the default digest.
	SHA256 Algorithm = "sha256"
	// Blake2b is BLAKE2b-256.
	Blake2b Algorithm = "blake2b"
)

// hashChunkSize is the read size for streaming digests; memory use is
// independent of file size.
const hashChunkSize = 64 * 1024

func newHasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA256, "":
		return sha256.New(), nil
	case Blake2b:
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, fmt.Errorf("blake2b: %w", err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q", algo)
	}
}

// HashFile streams a file through the chosen digest in fixed-size chunks and
// returns the lowercase hex encoding.
func HashFile(path string, algo Algorithm) (string, error) {
	h, err := newHasher(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
