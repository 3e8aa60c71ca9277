package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, enough for cache keys and logs.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// HashFields hashes an ordered list of fields. Fields are length-prefixed by
// a separator that cannot occur in UTF-8 text, so ("ab","c") != ("a","bc").
func HashFields(fields ...string) Hash {
	var data strings.Builder
	for _, f := range fields {
		data.WriteString(f)
		data.WriteByte(0xff)
	}
	return NewHash([]byte(data.String()))
}

// HashKeyed hashes a map after sorting its keys.
func HashKeyed(values map[string]string) Hash {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		fields = append(fields, k, values[k])
	}
	return HashFields(fields...)
}
