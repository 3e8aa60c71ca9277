package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamDeterministic(t *testing.T) {
	a := Stream(42, "split")
	b := Stream(42, "split")
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestStreamsAreIndependentByName(t *testing.T) {
	assert.NotEqual(t, Seed(42, "split"), Seed(42, "shuffle"))
	assert.NotEqual(t, Seed(42, "split"), Seed(43, "split"))
}
