// Package ringbuf implements a growable circular byte buffer used for
// per-connection socket staging and for the append-only log's write buffer.
//
// A Buffer never shrinks on its own and never shifts bytes on consume; the
// read cursor (head) and write cursor (tail) both wrap around capacity.
// Growth only happens on Append or on an Insert that runs past the end, and
// a growth always unwraps the buffer so that head becomes 0 and tail becomes
// size.
package ringbuf

import (
	"encoding/binary"
	"math"
)

const growThreshold = 1024 * 1024

// Buffer is a circular byte FIFO with amortized-doubling growth.
//
// Invariant: head < capacity, tail == (head+size) mod capacity, and
// size <= capacity always hold after any public method returns.
type Buffer struct {
	data     []byte
	head     int
	tail     int
	size     int
	capacity int
}

// New returns an empty Buffer with the given initial capacity. A zero or
// negative capacity is treated as 64.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &Buffer{data: make([]byte, capacity), capacity: capacity}
}

// Size returns the number of bytes currently stored.
func (b *Buffer) Size() int { return b.size }

// Empty reports whether the buffer holds no bytes.
func (b *Buffer) Empty() bool { return b.size == 0 }

// Capacity returns the buffer's current backing capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Append copies data onto the tail, growing the buffer first if necessary.
//
// Growth formula mirrors the reference implementation this type is ported
// from: double the required size below 1 MiB, otherwise grow by exactly
// the overflow plus 1 MiB, to avoid doubling a buffer that is already large.
func (b *Buffer) Append(data []byte) {
	need := len(data) + b.size
	if need > b.capacity {
		var newCap int
		if need < growThreshold {
			newCap = need * 2
		} else {
			newCap = need + growThreshold
		}
		b.resize(newCap)
	}
	if b.tail+len(data) > b.capacity {
		right := b.capacity - b.tail
		left := len(data) - right
		copy(b.data[b.tail:], data[:right])
		copy(b.data, data[right:])
		b.tail = left
	} else {
		copy(b.data[b.tail:], data)
		b.tail = (b.tail + len(data)) % b.capacity
	}
	b.size += len(data)
}

// AppendU8 appends a single byte.
func (b *Buffer) AppendU8(v uint8) { b.Append([]byte{v}) }

// AppendU32 appends v as 4 little-endian bytes.
func (b *Buffer) AppendU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Append(buf[:])
}

// AppendI64 appends v as 8 little-endian bytes.
func (b *Buffer) AppendI64(v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	b.Append(buf[:])
}

// AppendDbl appends v as its IEEE-754 little-endian bit pattern.
func (b *Buffer) AppendDbl(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	b.Append(buf[:])
}

// Consume discards the first n bytes, advancing head without copying.
func (b *Buffer) Consume(n int) {
	b.head = (b.head + n) % b.capacity
	b.size -= n
}

func (b *Buffer) resize(newCapacity int) {
	newData := make([]byte, newCapacity)
	if b.head < b.tail {
		copy(newData, b.data[b.head:b.head+b.size])
	} else {
		right := b.capacity - b.head
		copy(newData, b.data[b.head:])
		copy(newData[right:], b.data[:b.tail])
	}
	b.head = 0
	b.tail = b.size
	b.capacity = newCapacity
	b.data = newData
}

// Peek copies len(dst) bytes starting at logical offset pos into dst.
//
// pos is a precondition, not a clamp: callers must ensure pos+len(dst) does
// not exceed Size. A pos at or beyond Size is a no-op, matching the ported
// reference behavior rather than panicking, so a caller that mis-tracks its
// own offsets sees silently stale bytes in dst instead of a crash.
func (b *Buffer) Peek(dst []byte, pos int) {
	if pos >= b.size {
		return
	}
	realPos := (b.head + pos) % b.capacity
	n := len(dst)
	if realPos+n <= b.capacity {
		copy(dst, b.data[realPos:realPos+n])
	} else {
		right := b.capacity - realPos
		copy(dst, b.data[realPos:])
		copy(dst[right:], b.data[:n-right])
	}
}

// PeekU32 reads a little-endian uint32 at logical offset pos.
func (b *Buffer) PeekU32(pos int) uint32 {
	var buf [4]byte
	b.Peek(buf[:], pos)
	return binary.LittleEndian.Uint32(buf[:])
}

// ContiguousSpan returns the largest contiguous run of bytes starting at
// logical offset pos, without copying. The returned slice aliases the
// buffer's backing array and is invalidated by the next Append or Consume.
//
// Unlike the buffer this type is ported from, the span length is computed
// as min(size-pos, capacity-realPos): the source formula (tail-real_pos)
// returns a wrong, too-large span once the buffer has wrapped and pos lands
// past tail in ring order, which can walk a caller past the end of the
// logically valid region. This implementation caps the span at the number
// of valid bytes remaining, not just at the physical end of the array.
func (b *Buffer) ContiguousSpan(pos int) []byte {
	if pos >= b.size {
		return nil
	}
	realPos := (b.head + pos) % b.capacity
	remaining := b.size - pos
	toEnd := b.capacity - realPos
	n := remaining
	if toEnd < n {
		n = toEnd
	}
	return b.data[realPos : realPos+n]
}

// CopyData copies the first len(dst) bytes of the buffer into dst.
func (b *Buffer) CopyData(dst []byte) {
	b.Peek(dst, 0)
}

// At returns the byte at logical offset pos.
func (b *Buffer) At(pos int) byte {
	return b.data[(b.head+pos)%b.capacity]
}

// Insert overwrites len(data) bytes starting at logical offset pos,
// extending the buffer's logical size (and growing its capacity if needed)
// when the write runs past the current tail. It never shifts existing
// bytes; it only ever writes in place or appends past the end.
func (b *Buffer) Insert(data []byte, pos int) {
	if pos >= b.size {
		return
	}
	if pos+len(data) > b.size {
		newSize := pos + len(data)
		if newSize > b.capacity {
			b.resize(newSize * 2)
		}
		b.size = newSize
		b.tail = (b.head + b.size) % b.capacity
	}
	realPos := (b.head + pos) % b.capacity
	if realPos+len(data) > b.capacity {
		first := b.capacity - realPos
		copy(b.data[realPos:], data[:first])
		copy(b.data, data[first:])
	} else {
		copy(b.data[realPos:], data)
	}
}
