// Package zset implements a sorted-set value: members ordered by
// (score, name), supporting point lookup by name and range scans starting
// at a given (score, name) pivot.
//
// The reference this type is ported from pairs a hash table (name -> node)
// with an augmented AVL tree ordered by (score, name) that also answers
// rank queries in O(log n). This implementation keeps the same pairing but
// swaps the hand-rolled AVL tree for a generic B-tree, which has no rank
// queries: Range materializes the full ordering and finds the pivot's index
// with a linear scan, so each range query is O(n) in the size of the set.
package zset

import (
	"github.com/tidwall/btree"
)

// Node is one member of a sorted set.
type Node struct {
	Name  string
	Score float64
}

// Set is a sorted-set value ordered by (score, name).
type Set struct {
	byName map[string]*Node
	tree   *btree.BTreeG[*Node]
}

func less(a, b *Node) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Name < b.Name
}

// New returns an empty sorted set.
func New() *Set {
	return &Set{
		byName: make(map[string]*Node),
		tree:   btree.NewBTreeG(less),
	}
}

// Len returns the number of members in the set.
func (s *Set) Len() int {
	return len(s.byName)
}

// Insert adds name with score, or updates its score if name is already a
// member. It reports whether a new member was added (false on update).
func (s *Set) Insert(name string, score float64) bool {
	if existing, ok := s.byName[name]; ok {
		if existing.Score == score {
			return false
		}
		s.tree.Delete(existing)
		existing.Score = score
		s.tree.Set(existing)
		return false
	}
	n := &Node{Name: name, Score: score}
	s.byName[name] = n
	s.tree.Set(n)
	return true
}

// Lookup returns the member named name, if any.
func (s *Set) Lookup(name string) (*Node, bool) {
	n, ok := s.byName[name]
	return n, ok
}

// Delete removes the member named name, if present.
func (s *Set) Delete(name string) bool {
	n, ok := s.byName[name]
	if !ok {
		return false
	}
	delete(s.byName, name)
	s.tree.Delete(n)
	return true
}

// SeekGE returns the first member at or after the (score, name) pivot, in
// ascending (score, name) order, or nil if none exists.
func (s *Set) SeekGE(score float64, name string) *Node {
	var found *Node
	pivot := &Node{Name: name, Score: score}
	s.tree.Ascend(pivot, func(item *Node) bool {
		found = item
		return false
	})
	return found
}

// Range walks up to limit members starting at the (score, name) pivot,
// skipping offset members first (offset may be negative to seek backward
// from the pivot through members already seen before it, matching the
// reference implementation's bidirectional offset semantics — negative
// offsets are resolved by scanning the full ordering once rather than
// maintaining back-links, since the B-tree here has no threaded
// predecessor pointer).
func (s *Set) Range(score float64, name string, offset, limit int64) []*Node {
	if limit <= 0 {
		return nil
	}
	all := s.ordered()
	idx := seekIndex(all, score, name)
	idx += int(offset)
	if idx < 0 || idx >= len(all) {
		return nil
	}
	end := idx + int(limit)
	if end > len(all) {
		end = len(all)
	}
	return all[idx:end]
}

func (s *Set) ordered() []*Node {
	out := make([]*Node, 0, len(s.byName))
	s.tree.Scan(func(item *Node) bool {
		out = append(out, item)
		return true
	})
	return out
}

func seekIndex(all []*Node, score float64, name string) int {
	pivot := &Node{Name: name, Score: score}
	for i, n := range all {
		if !less(n, pivot) {
			return i
		}
	}
	return len(all)
}

// ForEach visits every member in ascending (score, name) order.
func (s *Set) ForEach(fn func(n *Node)) {
	s.tree.Scan(func(item *Node) bool {
		fn(item)
		return true
	})
}
