package object

import (
	"encoding/hex"
	"fmt"

	"github.com/pjbgf/sha1cd"
)

// HashSize is the length of a hex-encoded digest.
const HashSize = 40

// envelope returns the "type len\0" header that prefixes every object.
func envelope(objType ObjectType, size int) []byte {
	return []byte(fmt.Sprintf("%s %d\x00", objType, size))
}

// HashObject computes the SHA-1 of the envelope "type len\0content". This is
// Git's object hashing rule, so blob hashes match `git hash-object`.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1cd.New()
	h.Write(envelope(objType, len(data)))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ParseHash validates s as a full lowercase hex digest.
func ParseHash(s string) (Hash, error) {
	if len(s) != HashSize {
		return "", fmt.Errorf("%w: %q has length %d, want %d", ErrInvalidHash, s, len(s), HashSize)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidHash, s)
		}
	}
	return Hash(s), nil
}

// Short returns the first 8 characters of the hash for display.
func (h Hash) Short() string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}
