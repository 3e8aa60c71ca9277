// Package rng derives independent, reproducible random streams from one
// run seed, one stream per named operation (split, shuffle, init, augment).
package rng

import (
	"hash/fnv"
	"math/rand"
)

// Seed derives the sub-seed for a named operation.
func Seed(seed int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return seed ^ int64(h.Sum64()&0x7fffffffffffffff)
}

// Stream returns a deterministic generator for a named operation.
func Stream(seed int64, name string) *rand.Rand {
	return rand.New(rand.NewSource(Seed(seed, name)))
}
