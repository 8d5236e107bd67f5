package store

import "container/heap"

// ttlHeap is a min-heap of entries ordered by ExpireAt, with each Entry's
// HeapIdx kept in sync by Swap so a caller holding an *Entry can always
// find (and remove or update) its own heap slot in O(log n) without a
// linear scan — the same back-pointer contract as a heap item carrying an
// index field back to its owner.
type ttlHeap []*Entry

func (h ttlHeap) Len() int            { return len(h) }
func (h ttlHeap) Less(i, j int) bool  { return h[i].ExpireAt < h[j].ExpireAt }
func (h ttlHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].HeapIdx = i
	h[j].HeapIdx = j
}

func (h *ttlHeap) Push(x any) {
	e := x.(*Entry)
	e.HeapIdx = len(*h)
	*h = append(*h, e)
}

func (h *ttlHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	e.HeapIdx = noHeapIndex
	return e
}

// upsertTTL sets ent's ExpireAt to expireAt, then adds ent to the heap if
// absent or restores its heap position if it is already present.
func upsertTTL(h *ttlHeap, ent *Entry, expireAt int64) {
	ent.ExpireAt = expireAt
	if ent.HeapIdx == noHeapIndex {
		heap.Push(h, ent)
	} else {
		heap.Fix(h, ent.HeapIdx)
	}
}

// removeTTL drops ent from the heap if present; a no-op otherwise.
func removeTTL(h *ttlHeap, ent *Entry) {
	if ent.HeapIdx == noHeapIndex {
		return
	}
	heap.Remove(h, ent.HeapIdx)
}
