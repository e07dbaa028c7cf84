// Package digest computes content fingerprints for cataloged files.
package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/sha3"
)

// Size is the length in hex characters of every digest produced here.
const Size = 64

// ErrNotRegular is returned when the path names a directory, device or other
// non-regular file.
var ErrNotRegular = errors.New("not a regular file")

// File streams the content at path through SHA3-256 and returns the lowercase
// hex digest together with the number of bytes read. The file is never loaded
// into memory as a whole.
func File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("digest %q: %w", path, ErrNotRegular)
	}

	sum, n, err := Reader(f)
	if err != nil {
		return "", n, fmt.Errorf("digest %q: %w", path, err)
	}
	return sum, n, nil
}

// Reader folds everything remaining in r through SHA3-256.
func Reader(r io.Reader) (string, int64, error) {
	h := sha3.New256()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Bytes returns the digest of b. Useful for comparing stored records with
// known content.
func Bytes(b []byte) string {
	sum := sha3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
