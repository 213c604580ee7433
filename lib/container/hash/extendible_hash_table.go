// Package hash provides an in-memory extendible hash table. The buffer pool
// uses it as the page directory mapping page ids to frames.
package hash

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps a key to the bit string the directory discriminates on.
type Hasher[K any] func(K) uint64

// IntHasher hashes any integer-shaped key through xxhash of its fixed-width
// little-endian encoding.
func IntHasher[K ~int | ~int32 | ~int64 | ~uint32 | ~uint64](key K) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(key)))
	return xxhash.Sum64(buf[:])
}

// StringHasher hashes string keys with xxhash.
func StringHasher(key string) uint64 {
	return xxhash.Sum64String(key)
}

type hashEntry[K comparable, V comparable] struct {
	key   K
	value V
}

// hashBucket holds up to size entries that agree on the low depth hash bits.
type hashBucket[K comparable, V comparable] struct {
	items []hashEntry[K, V]
	size  int
	depth int
}

func newHashBucket[K comparable, V comparable](size, depth int) *hashBucket[K, V] {
	return &hashBucket[K, V]{items: make([]hashEntry[K, V], 0, size), size: size, depth: depth}
}

func (b *hashBucket[K, V]) isFull() bool {
	return len(b.items) >= b.size
}

func (b *hashBucket[K, V]) find(key K) (V, bool) {
	for _, item := range b.items {
		if item.key == key {
			return item.value, true
		}
	}
	var zero V
	return zero, false
}

func (b *hashBucket[K, V]) remove(key K) bool {
	for i, item := range b.items {
		if item.key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

func (b *hashBucket[K, V]) insert(key K, value V) bool {
	for i, item := range b.items {
		if item.key == key {
			b.items[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.items = append(b.items, hashEntry[K, V]{key: key, value: value})
	return true
}

// ExtendibleHashTable is a thread-safe associative map whose directory doubles
// incrementally: a full bucket splits on its next discriminating bit, and the
// directory only grows when the splitting bucket already uses every global
// bit.
type ExtendibleHashTable[K comparable, V comparable] struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	numBuckets  int
	hasher      Hasher[K]
	dir         []*hashBucket[K, V]
}

// NewExtendibleHashTable creates a table with one empty bucket of the given
// capacity. hasher decides the directory bits; tests may inject a custom one.
func NewExtendibleHashTable[K comparable, V comparable](bucketSize int, hasher Hasher[K]) *ExtendibleHashTable[K, V] {
	return &ExtendibleHashTable[K, V]{
		bucketSize: bucketSize,
		numBuckets: 1,
		hasher:     hasher,
		dir:        []*hashBucket[K, V]{newHashBucket[K, V](bucketSize, 0)},
	}
}

func (h *ExtendibleHashTable[K, V]) indexOf(key K) int {
	mask := (1 << h.globalDepth) - 1
	return int(h.hasher(key)) & mask
}

// GetGlobalDepth returns the number of hash bits the directory uses.
func (h *ExtendibleHashTable[K, V]) GetGlobalDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.globalDepth
}

// GetLocalDepth returns the depth of the bucket behind directory slot dirIndex.
func (h *ExtendibleHashTable[K, V]) GetLocalDepth(dirIndex int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[dirIndex].depth
}

// GetNumBuckets returns the number of distinct buckets.
func (h *ExtendibleHashTable[K, V]) GetNumBuckets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.numBuckets
}

// Find looks up key.
func (h *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[h.indexOf(key)].find(key)
}

// Remove deletes key, reporting whether it was present.
func (h *ExtendibleHashTable[K, V]) Remove(key K) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir[h.indexOf(key)].remove(key)
}

// Insert upserts (key, value), splitting the target bucket, and doubling the
// directory when needed, until the insert fits.
func (h *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()

	target := h.dir[h.indexOf(key)]
	if val, ok := target.find(key); ok {
		if val == value {
			return
		}
		target.remove(key)
	}

	for h.dir[h.indexOf(key)].isFull() {
		index := h.indexOf(key)
		target = h.dir[index]
		mask := 1 << target.depth

		if target.depth == h.globalDepth {
			h.globalDepth++
			h.dir = append(h.dir, h.dir...)
		}

		bucket0 := newHashBucket[K, V](h.bucketSize, target.depth+1)
		bucket1 := newHashBucket[K, V](h.bucketSize, target.depth+1)
		h.numBuckets++

		for _, item := range target.items {
			if h.hasher(item.key)&uint64(mask) != 0 {
				bucket1.insert(item.key, item.value)
			} else {
				bucket0.insert(item.key, item.value)
			}
		}
		for i := range h.dir {
			if h.dir[i] == target {
				if i&mask != 0 {
					h.dir[i] = bucket1
				} else {
					h.dir[i] = bucket0
				}
			}
		}
	}

	h.dir[h.indexOf(key)].insert(key, value)
}
