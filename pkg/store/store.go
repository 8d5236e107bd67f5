package store

import (
	"container/heap"

	"github.com/ringcache/ringcache/pkg/store/zset"
	"github.com/ringcache/ringcache/pkg/workerpool"
)

// defaultLargeContainerSize is the sorted-set member count above which an
// Entry's teardown is offloaded to a worker rather than run inline, so a
// client deleting a many-million-member zset doesn't stall every other
// connection for the duration of the teardown. New callers that care can
// override it via NewWithThreshold.
const defaultLargeContainerSize = 1000

// Store is the process's key/value table: a hash map from key to Entry,
// plus a TTL min-heap so expiry scans never touch a key that isn't due.
//
// A Store is not safe for concurrent use; it is owned and driven
// exclusively by the event loop goroutine, except for the teardown of
// large sorted sets, which a Store hands off to a worker pool (the values
// being destroyed are already unreachable from the map and heap by the
// time a worker touches them, so no lock is needed there either).
type Store struct {
	entries            map[string]*Entry
	ttl                ttlHeap
	workers            *workerpool.Pool
	largeContainerSize int
}

// New returns an empty Store using the default large-sorted-set teardown
// threshold. workers is the pool used to offload large sorted-set
// teardown; pass nil to always tear down inline.
func New(workers *workerpool.Pool) *Store {
	return NewWithThreshold(workers, defaultLargeContainerSize)
}

// NewWithThreshold is like New but lets the caller configure the member
// count above which a deleted sorted set's teardown is offloaded to the
// worker pool, per config.Config.LargeZSetThreshold.
func NewWithThreshold(workers *workerpool.Pool, largeContainerSize int) *Store {
	return &Store{
		entries:            make(map[string]*Entry),
		workers:            workers,
		largeContainerSize: largeContainerSize,
	}
}

// Len returns the number of keys currently stored.
func (s *Store) Len() int {
	return len(s.entries)
}

// Lookup returns the entry for key, if present.
func (s *Store) Lookup(key string) (*Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// GetString returns the string value at key. found is false if key does
// not exist; err is ErrWrongType if key exists with a non-string value.
func (s *Store) GetString(key string) (val []byte, found bool, err error) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.Variant != VariantString {
		return nil, false, ErrWrongType
	}
	return e.Str, true, nil
}

// SetString sets key to a string value, creating it if absent. It
// returns ErrWrongType if key already exists with a non-string value.
func (s *Store) SetString(key string, val []byte) error {
	if e, ok := s.entries[key]; ok {
		if e.Variant != VariantString {
			return ErrWrongType
		}
		e.Str = val
		return nil
	}
	s.entries[key] = newStringEntry(key, val)
	return nil
}

// Delete removes key, tearing down its value (offloading large sorted-set
// teardown to the worker pool). It reports whether key was present.
func (s *Store) Delete(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	s.destroy(e)
	return true
}

func (s *Store) destroy(e *Entry) {
	removeTTL(&s.ttl, e)
	if e.Variant != VariantZSet {
		return
	}
	if e.ZSet.Len() > s.largeContainerSize && s.workers != nil {
		zs := e.ZSet
		s.workers.Submit(func() {
			zs.ForEach(func(*zset.Node) {})
		})
		return
	}
}

// SetExpire sets key's TTL to ttlMs milliseconds from nowMs. A negative
// ttlMs removes any existing TTL. It reports whether key was present.
func (s *Store) SetExpire(key string, ttlMs int64, nowMs int64) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if ttlMs < 0 {
		removeTTL(&s.ttl, e)
		return true
	}
	upsertTTL(&s.ttl, e, nowMs+ttlMs)
	return true
}

// TTL returns the number of milliseconds until key expires, -1 if key has
// no TTL, or -2 if key does not exist.
func (s *Store) TTL(key string, nowMs int64) int64 {
	e, ok := s.entries[key]
	if !ok {
		return -2
	}
	if !e.HasTTL() {
		return -1
	}
	if e.ExpireAt > nowMs {
		return e.ExpireAt - nowMs
	}
	return 0
}

// Keys returns every key currently stored, in map iteration order.
func (s *Store) Keys() []string {
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

// ZAdd adds or updates member name's score in the sorted set at key,
// creating the set if key does not exist. It returns ErrWrongType if key
// exists with a non-zset value, and reports whether name was newly added.
func (s *Store) ZAdd(key, name string, score float64) (bool, error) {
	e, ok := s.entries[key]
	if !ok {
		e = newZSetEntry(key)
		s.entries[key] = e
	} else if e.Variant != VariantZSet {
		return false, ErrWrongType
	}
	return e.ZSet.Insert(name, score), nil
}

// ZRem removes member name from the sorted set at key. A missing key is
// treated as an empty set. It returns ErrWrongType if key exists with a
// non-zset value, and reports whether name was present.
func (s *Store) ZRem(key, name string) (bool, error) {
	zs, err := s.expectZSet(key)
	if err != nil {
		return false, err
	}
	if zs == nil {
		return false, nil
	}
	return zs.Delete(name), nil
}

// ZScore returns member name's score in the sorted set at key, and
// whether it was found. A missing key is treated as an empty set.
func (s *Store) ZScore(key, name string) (float64, bool, error) {
	zs, err := s.expectZSet(key)
	if err != nil {
		return 0, false, err
	}
	if zs == nil {
		return 0, false, nil
	}
	n, ok := zs.Lookup(name)
	if !ok {
		return 0, false, nil
	}
	return n.Score, true, nil
}

// ZQuery returns up to limit (name, score) pairs from the sorted set at
// key, starting at the (score, name) pivot and skipping offset members. A
// missing key is treated as an empty set.
func (s *Store) ZQuery(key string, score float64, name string, offset, limit int64) ([]*zset.Node, error) {
	zs, err := s.expectZSet(key)
	if err != nil {
		return nil, err
	}
	if zs == nil || limit <= 0 {
		return nil, nil
	}
	return zs.Range(score, name, offset, limit), nil
}

// expectZSet returns the sorted set at key, nil if key does not exist
// (treated as empty), or ErrWrongType if key exists with another variant.
func (s *Store) expectZSet(key string) (*zset.Set, error) {
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if e.Variant != VariantZSet {
		return nil, ErrWrongType
	}
	return e.ZSet, nil
}

// NextExpiry returns the ExpireAt of the soonest-expiring entry, and
// whether any entry carries a TTL at all.
func (s *Store) NextExpiry() (int64, bool) {
	if len(s.ttl) == 0 {
		return 0, false
	}
	return s.ttl[0].ExpireAt, true
}

// ExpireDue evicts every entry whose TTL has passed nowMs, stopping after
// maxWork evictions so a burst of simultaneous expirations can't stall the
// event loop for an unbounded amount of time; remaining expired entries
// are picked up on the next call. It returns the keys evicted.
func (s *Store) ExpireDue(nowMs int64, maxWork int) []string {
	var evicted []string
	for len(s.ttl) > 0 && s.ttl[0].ExpireAt < nowMs {
		e := heap.Pop(&s.ttl).(*Entry)
		delete(s.entries, e.Key)
		s.destroy(e)
		evicted = append(evicted, e.Key)
		if len(evicted) >= maxWork {
			break
		}
	}
	return evicted
}

// ForEach visits every entry, for AOF rewrite snapshotting. The callback
// must not mutate the Store.
func (s *Store) ForEach(fn func(*Entry)) {
	for _, e := range s.entries {
		fn(e)
	}
}
