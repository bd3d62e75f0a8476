package embedcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorOf(dim int, fill float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = fill
	}

	return v
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	c := New(DefaultMaxBytes)

	c.Put("ERROR payment declined", vectorOf(4, 0.5))

	got := c.Get("ERROR payment declined")
	require.NotNil(t, got)
	assert.Equal(t, vectorOf(4, 0.5), got)

	assert.Nil(t, c.Get("never cached"))
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	// Room for exactly two 4-component vectors (16 bytes each).
	c := New(32)

	c.Put("a", vectorOf(4, 1))
	c.Put("b", vectorOf(4, 2))

	// Touch "a" so "b" is the LRU victim.
	require.NotNil(t, c.Get("a"))

	c.Put("c", vectorOf(4, 3))

	assert.NotNil(t, c.Get("a"))
	assert.Nil(t, c.Get("b"))
	assert.NotNil(t, c.Get("c"))
}

func TestCache_RejectsOversizedAndEmpty(t *testing.T) {
	t.Parallel()

	c := New(16)

	c.Put("huge", vectorOf(100, 1))
	assert.Nil(t, c.Get("huge"))

	c.Put("empty", nil)
	assert.Nil(t, c.Get("empty"))
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := New(DefaultMaxBytes)

	c.Put("x", vectorOf(4, 1))
	c.Get("x")
	c.Get("x")
	c.Get("missing")

	stats := c.Stats()

	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(16), stats.CurrentBytes)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)
}

func TestBloomFilter_NoFalseNegatives(t *testing.T) {
	t.Parallel()

	f := newBloomFilter(1000, 0.01)

	for i := range 500 {
		f.add([]byte(fmt.Sprintf("chunk-%d", i)))
	}

	for i := range 500 {
		assert.True(t, f.test([]byte(fmt.Sprintf("chunk-%d", i))))
	}

	// False positives are allowed but should stay rare.
	falsePositives := 0

	for i := 500; i < 1500; i++ {
		if f.test([]byte(fmt.Sprintf("chunk-%d", i))) {
			falsePositives++
		}
	}

	assert.Less(t, falsePositives, 100)
}
