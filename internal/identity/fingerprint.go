// Package identity computes cheap content fingerprints for idempotent ingest.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
)

// PrefixBytes is how much of the file head is hashed.
const PrefixBytes = 64 * 1024

// Fingerprint is the SHA-256 of the first PrefixBytes of a file followed by
// the decimal file size. It is an idempotency key, not a full content hash.
type Fingerprint struct {
	Hash string
	Size int64
}

// Compute fingerprints the file at path.
func Compute(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return Fingerprint{}, fmt.Errorf("%s is a directory", path)
	}

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(f, PrefixBytes)); err != nil {
		return Fingerprint{}, fmt.Errorf("read %s: %w", path, err)
	}
	h.Write([]byte(strconv.FormatInt(st.Size(), 10)))

	return Fingerprint{Hash: hex.EncodeToString(h.Sum(nil)), Size: st.Size()}, nil
}
