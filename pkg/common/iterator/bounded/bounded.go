package bounded

import (
	"bytes"

	"github.com/KevoDB/tablestore/pkg/common/iterator"
)

// BoundedIterator wraps an iterator and limits it to the range [start, end).
// A nil bound is open.
type BoundedIterator struct {
	iterator.Iterator
	start   []byte
	end     []byte
	compare func(a, b []byte) int
}

// NewBoundedIterator creates a new bounded iterator using bytewise ordering
func NewBoundedIterator(iter iterator.Iterator, startKey, endKey []byte) *BoundedIterator {
	return NewBoundedIteratorWithCompare(iter, startKey, endKey, bytes.Compare)
}

// NewBoundedIteratorWithCompare creates a bounded iterator whose bounds are
// checked with compare, which must match the ordering of iter.
func NewBoundedIteratorWithCompare(iter iterator.Iterator, startKey, endKey []byte,
	compare func(a, b []byte) int) *BoundedIterator {

	bi := &BoundedIterator{
		Iterator: iter,
		compare:  compare,
	}
	bi.SetBounds(startKey, endKey)
	return bi
}

// SetBounds sets the start and end bounds for the iterator
func (b *BoundedIterator) SetBounds(start, end []byte) {
	b.start = nil
	if start != nil {
		b.start = append([]byte(nil), start...)
	}

	b.end = nil
	if end != nil {
		b.end = append([]byte(nil), end...)
	}
}

// SeekToFirst positions at the first key in the bounded range
func (b *BoundedIterator) SeekToFirst() {
	if b.start != nil {
		b.Iterator.Seek(b.start)
	} else {
		b.Iterator.SeekToFirst()
	}
}

// SeekToLast positions at the last key in the bounded range
func (b *BoundedIterator) SeekToLast() {
	if b.end == nil {
		b.Iterator.SeekToLast()
		return
	}

	// The first key >= end is one past the range; step back from it. When
	// there is no such key every key is below end.
	if b.Iterator.Seek(b.end) {
		b.Iterator.Prev()
	} else if b.Iterator.Error() == nil {
		b.Iterator.SeekToLast()
	}
}

// Seek positions at the first key >= target within bounds
func (b *BoundedIterator) Seek(target []byte) bool {
	if b.start != nil && b.compare(target, b.start) < 0 {
		target = b.start
	}

	if b.end != nil && b.compare(target, b.end) >= 0 {
		return false
	}

	if b.Iterator.Seek(target) {
		return b.checkBounds()
	}
	return false
}

// Next advances to the next key within bounds
func (b *BoundedIterator) Next() bool {
	if !b.checkBounds() {
		return false
	}
	if !b.Iterator.Next() {
		return false
	}
	return b.checkBounds()
}

// Prev moves to the previous key within bounds
func (b *BoundedIterator) Prev() bool {
	if !b.checkBounds() {
		return false
	}
	if !b.Iterator.Prev() {
		return false
	}
	return b.checkBounds()
}

// Valid returns true if the iterator is positioned at a valid entry within bounds
func (b *BoundedIterator) Valid() bool {
	return b.checkBounds()
}

// Key returns the current key if within bounds
func (b *BoundedIterator) Key() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Key()
}

// Value returns the current value if within bounds
func (b *BoundedIterator) Value() []byte {
	if !b.Valid() {
		return nil
	}
	return b.Iterator.Value()
}

// checkBounds reports whether the underlying iterator is positioned inside the range
func (b *BoundedIterator) checkBounds() bool {
	if !b.Iterator.Valid() {
		return false
	}

	if b.start != nil && b.compare(b.Iterator.Key(), b.start) < 0 {
		return false
	}

	if b.end != nil && b.compare(b.Iterator.Key(), b.end) >= 0 {
		return false
	}

	return true
}

// PrefixSuccessor returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists (the prefix is all 0xff).
func PrefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			succ := append([]byte(nil), prefix[:i+1]...)
			succ[i]++
			return succ
		}
	}
	return nil
}

// NewPrefixIterator bounds iter to keys that start with prefix
func NewPrefixIterator(iter iterator.Iterator, prefix []byte) *BoundedIterator {
	return NewBoundedIterator(iter, prefix, PrefixSuccessor(prefix))
}
