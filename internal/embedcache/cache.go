// Package embedcache provides a bounded in-process cache of chunk-text
// vectors. Re-runs over the same table produce identical chunk texts, and
// the point ids are deterministic, so a cached vector saves a full
// endpoint round trip without changing what gets upserted.
package embedcache

import (
	"crypto/sha256"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// DefaultMaxBytes bounds the cache at 64 MB of vector data. At 1024
// float32 dimensions that is roughly 16k cached chunks.
const DefaultMaxBytes = 64 * 1024 * 1024

// float32Size is the byte size of one vector component.
const float32Size = 4

// Bloom pre-filter sizing. The filter short-circuits map lookups for texts
// that were never cached, which is the common case on a first pass.
const (
	bloomFPRate      = 0.01
	minBloomElements = 256
)

// key is the content hash identifying one chunk text.
type key [sha256.Size]byte

// entry is a doubly-linked list node for LRU tracking.
type entry struct {
	key    key
	vector []float32
	size   int64
	prev   *entry
	next   *entry
}

// Cache is a thread-safe LRU over chunk-text vectors with a Bloom
// pre-filter. Vectors within one cache share a dimension, so eviction is
// plain LRU; there is no size-aware cost to weigh.
type Cache struct {
	mu          sync.Mutex
	entries     map[key]*entry
	head        *entry
	tail        *entry
	filter      *bloomFilter
	maxBytes    int64
	currentSize int64

	hits          atomic.Int64
	misses        atomic.Int64
	bloomFiltered atomic.Int64
}

// New creates a cache bounded at maxBytes of vector data. Non-positive
// sizes fall back to DefaultMaxBytes.
func New(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	expected := max(uint(maxBytes/(1024*float32Size)), minBloomElements)

	return &Cache{
		entries:  make(map[key]*entry),
		filter:   newBloomFilter(expected, bloomFPRate),
		maxBytes: maxBytes,
	}
}

// Get returns the cached vector for text, or nil. The returned slice is
// shared; callers must not mutate it.
func (c *Cache) Get(text string) []float32 {
	k := sha256.Sum256([]byte(text))

	if !c.filter.test(k[:]) {
		c.bloomFiltered.Add(1)
		c.misses.Add(1)

		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		c.misses.Add(1)

		return nil
	}

	c.hits.Add(1)
	c.moveToFront(e)

	return e.vector
}

// Put stores the vector for text, evicting least recently used entries to
// stay within the byte budget.
func (c *Cache) Put(text string, vector []float32) {
	if len(vector) == 0 {
		return
	}

	size := int64(len(vector)) * float32Size
	if size > c.maxBytes {
		return
	}

	k := sha256.Sum256([]byte(text))

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[k]; ok {
		c.moveToFront(e)

		return
	}

	for c.currentSize+size > c.maxBytes && c.tail != nil {
		c.evictTail()
	}

	e := &entry{key: k, vector: vector, size: size}

	c.entries[k] = e
	c.currentSize += size
	c.addToFront(e)
	c.filter.add(k[:])
}

// Stats returns cache performance counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		BloomFiltered: c.bloomFiltered.Load(),
		Entries:       len(c.entries),
		CurrentBytes:  c.currentSize,
		MaxBytes:      c.maxBytes,
	}
}

// Stats holds cache performance counters.
type Stats struct {
	Hits          int64
	Misses        int64
	BloomFiltered int64 // Lookups short-circuited by the Bloom pre-filter.
	Entries       int
	CurrentBytes  int64
	MaxBytes      int64
}

// HitRate returns the fraction of lookups served from the cache.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

func (c *Cache) moveToFront(e *entry) {
	if e == c.head {
		return
	}

	c.removeFromList(e)
	c.addToFront(e)
}

func (c *Cache) addToFront(e *entry) {
	e.prev = nil
	e.next = c.head

	if c.head != nil {
		c.head.prev = e
	}

	c.head = e

	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) removeFromList(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Cache) evictTail() {
	victim := c.tail
	if victim == nil {
		return
	}

	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.currentSize -= victim.size
}

// bloomFilter is a minimal double-hashing Bloom filter: two FNV-derived
// base hashes produce k bit positions as h1 + i*h2 mod m. It never resets;
// after heavy eviction churn it only loses pre-filter efficiency, not
// correctness.
type bloomFilter struct {
	mu   sync.RWMutex
	bits []uint64
	m    uint64
	k    uint64
}

func newBloomFilter(n uint, fp float64) *bloomFilter {
	m := optimalBits(n, fp)
	k := optimalHashes(m, n)
	words := (m + 63) / 64

	return &bloomFilter{bits: make([]uint64, words), m: m, k: k}
}

func (f *bloomFilter) add(data []byte) {
	h1, h2 := hashKernel(data)

	f.mu.Lock()
	for i := uint64(0); i < f.k; i++ {
		bit := (h1 + i*h2) % f.m
		f.bits[bit/64] |= 1 << (bit % 64)
	}
	f.mu.Unlock()
}

func (f *bloomFilter) test(data []byte) bool {
	h1, h2 := hashKernel(data)

	f.mu.RLock()
	defer f.mu.RUnlock()

	for i := uint64(0); i < f.k; i++ {
		bit := (h1 + i*h2) % f.m

		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}

	return true
}

// hashKernel derives the two base hashes from one FNV-64a pass over data
// and a second pass over data with a salt byte.
func hashKernel(data []byte) (uint64, uint64) {
	h := fnv.New64a()
	h.Write(data)
	h1 := h.Sum64()

	h.Write([]byte{0x9e})
	h2 := h.Sum64() | 1

	return h1, h2
}

// optimalBits returns the bit-array size for n elements at false-positive
// rate fp: m = -n*ln(fp) / ln(2)^2.
func optimalBits(n uint, fp float64) uint64 {
	if fp <= 0 || fp >= 1 {
		fp = bloomFPRate
	}

	m := uint64(-float64(n) * math.Log(fp) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}

	return m
}

// optimalHashes returns the hash count k = (m/n) * ln(2).
func optimalHashes(m uint64, n uint) uint64 {
	k := uint64(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		k = 1
	}

	return k
}
