// Package checksum computes file digests used to validate libraries and processor outputs.
package checksum

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemoSize bounds the number of remembered digests.
const DefaultMemoSize = 4096

// SHA1File hex-encodes the sha1 of the file at path.
func SHA1File(path string) (string, error) {
	return hashFile(path, sha1.New())
}

// SHA256File hex-encodes the sha256 of the file at path.
func SHA256File(path string) (string, error) {
	return hashFile(path, sha256.New())
}

func hashFile(path string, h hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal compares hex digests case-insensitively.
func Equal(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type memoKey struct {
	path    string
	size    int64
	modTime time.Time
}

// Hasher memoizes sha1 digests by path, size and modification time, so the cache
// check and the post-run validation of an unchanged file hash it once.
type Hasher struct {
	memo *lru.Cache[memoKey, string]
}

// NewHasher returns a Hasher remembering up to size digests. size <= 0 uses
// DefaultMemoSize.
func NewHasher(size int) *Hasher {
	if size <= 0 {
		size = DefaultMemoSize
	}
	memo, err := lru.New[memoKey, string](size)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	return &Hasher{memo: memo}
}

// SHA1 returns the digest of path.
func (h *Hasher) SHA1(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	key := memoKey{path: path, size: info.Size(), modTime: info.ModTime()}
	if sum, ok := h.memo.Get(key); ok {
		return sum, nil
	}

	sum, err := SHA1File(path)
	if err != nil {
		return "", err
	}
	h.memo.Add(key, sum)
	return sum, nil
}

// Forget drops remembered digests for path. Call it after deleting or rewriting a file.
func (h *Hasher) Forget(path string) {
	for _, k := range h.memo.Keys() {
		if k.path == path {
			h.memo.Remove(k)
		}
	}
}

// Matches reports whether the file at path exists and, when expected is non-empty,
// has that sha1. actual is "" when the file is missing.
func (h *Hasher) Matches(path, expected string) (ok bool, actual string, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return false, "", nil
		}
		return false, "", statErr
	}
	if expected == "" {
		return true, "", nil
	}
	actual, err = h.SHA1(path)
	if err != nil {
		return false, "", err
	}
	return Equal(actual, expected), actual, nil
}
