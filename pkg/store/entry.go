// Package store holds the in-memory value table: plain strings and sorted
// sets, each optionally carrying a millisecond-resolution expiration time
// tracked in a min-heap keyed by expiry.
package store

import "github.com/ringcache/ringcache/pkg/store/zset"

// Variant identifies the kind of value an Entry holds.
type Variant uint8

const (
	VariantString Variant = 1
	VariantZSet   Variant = 2
)

// noHeapIndex marks an Entry that carries no TTL.
const noHeapIndex = -1

// Entry is one key's value plus its TTL bookkeeping.
//
// HeapIdx mirrors the reference implementation's back-pointer invariant:
// it always equals this Entry's current slot in the store's TTL heap, and
// the heap's Swap keeps it in sync on every sift so that removing or
// updating this Entry's TTL never requires a heap scan.
type Entry struct {
	Key      string
	Variant  Variant
	Str      []byte
	ZSet     *zset.Set
	HeapIdx  int
	ExpireAt int64 // monotonic ms; meaningful only while HeapIdx != noHeapIndex
}

func newStringEntry(key string, val []byte) *Entry {
	return &Entry{Key: key, Variant: VariantString, Str: val, HeapIdx: noHeapIndex}
}

func newZSetEntry(key string) *Entry {
	return &Entry{Key: key, Variant: VariantZSet, ZSet: zset.New(), HeapIdx: noHeapIndex}
}

// HasTTL reports whether the entry carries an expiration.
func (e *Entry) HasTTL() bool {
	return e.HeapIdx != noHeapIndex
}
