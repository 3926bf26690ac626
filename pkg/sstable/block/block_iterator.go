package block

import (
	"encoding/binary"
	"math"
)

// Iterator walks the records of one Block. Values are views into the block
// buffer; keys are rebuilt into a buffer owned by the iterator.
type Iterator struct {
	cmp         Comparator
	data        []byte
	restarts    uint32 // offset of the restart array
	numRestarts uint32

	// current is the offset of the current record; equal to restarts when
	// the iterator is not positioned
	current      uint32
	next         uint32
	restartIndex uint32
	key          []byte
	value        []byte
	positioned   bool
	err          error
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.err == nil && it.current < it.restarts
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.key
}

// Value returns the current value
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.value
}

// Error returns the corruption error that stopped the iterator, if any
func (it *Iterator) Error() error {
	return it.err
}

// Close is a no-op; the block is owned by its creator
func (it *Iterator) Close() error {
	return nil
}

// SeekToFirst positions the iterator at the first entry
func (it *Iterator) SeekToFirst() {
	if !it.begin() {
		return
	}
	it.seekToRestartPoint(0)
	it.parseNextKey()
}

// SeekToLast positions the iterator at the last entry
func (it *Iterator) SeekToLast() {
	if !it.begin() {
		return
	}
	it.seekToRestartPoint(it.numRestarts - 1)
	for it.parseNextKey() && it.next < it.restarts {
	}
}

// Seek positions the iterator at the first key >= target
func (it *Iterator) Seek(target []byte) bool {
	if !it.begin() {
		return false
	}

	// Binary search for the last restart point whose key is < target.
	// Restart records store their key in full so no prefix expansion is needed.
	left, right := uint32(0), it.numRestarts-1
	for left < right {
		mid := left + (right-left+1)/2
		offset := it.restartPoint(mid)
		if offset >= it.restarts {
			it.corruption()
			return false
		}
		shared, unshared, _, n, ok := decodeEntry(it.data[offset:it.restarts])
		if !ok || shared != 0 {
			it.corruption()
			return false
		}
		start := offset + n
		midKey := it.data[start : start+unshared]
		if it.cmp.Compare(midKey, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}

	it.seekToRestartPoint(left)
	for it.parseNextKey() {
		if it.cmp.Compare(it.key, target) >= 0 {
			return true
		}
	}
	return false
}

// Next advances the iterator to the next entry. On an iterator that was
// never positioned it behaves like SeekToFirst.
func (it *Iterator) Next() bool {
	if !it.positioned {
		it.SeekToFirst()
		return it.Valid()
	}
	if !it.Valid() {
		return false
	}
	return it.parseNextKey()
}

// Prev moves the iterator to the previous entry
func (it *Iterator) Prev() bool {
	if !it.Valid() {
		return false
	}

	// Scan backwards to a restart point that lies before the current record
	original := it.current
	for it.restartPoint(it.restartIndex) >= original {
		if it.restartIndex == 0 {
			it.invalidate()
			return false
		}
		it.restartIndex--
	}

	it.seekToRestartPoint(it.restartIndex)
	for {
		if !it.parseNextKey() {
			return false
		}
		if it.next >= original {
			return true
		}
	}
}

// begin resets the iterator before a seek. It returns false when the block
// holds no restart points and therefore no records.
func (it *Iterator) begin() bool {
	it.positioned = true
	it.err = nil
	if it.numRestarts == 0 {
		it.invalidate()
		return false
	}
	return true
}

func (it *Iterator) restartPoint(i uint32) uint32 {
	off := it.restarts + i*restartEntrySize
	return binary.LittleEndian.Uint32(it.data[off:])
}

func (it *Iterator) seekToRestartPoint(i uint32) {
	it.key = it.key[:0]
	it.value = nil
	it.restartIndex = i
	it.next = it.restartPoint(i)
}

func (it *Iterator) invalidate() {
	it.current = it.restarts
	it.restartIndex = it.numRestarts
	it.key = it.key[:0]
	it.value = nil
}

func (it *Iterator) corruption() {
	it.invalidate()
	it.err = ErrCorruptBlock
}

// parseNextKey decodes the record at it.next into key and value
func (it *Iterator) parseNextKey() bool {
	it.current = it.next
	if it.current >= it.restarts {
		it.invalidate()
		return false
	}

	shared, unshared, valueLen, n, ok := decodeEntry(it.data[it.current:it.restarts])
	if !ok || uint32(len(it.key)) < shared {
		it.corruption()
		return false
	}

	keyStart := it.current + n
	valueStart := keyStart + unshared
	it.key = append(it.key[:shared], it.data[keyStart:valueStart]...)
	it.value = it.data[valueStart : valueStart+valueLen : valueStart+valueLen]
	it.next = valueStart + valueLen

	for it.restartIndex+1 < it.numRestarts && it.restartPoint(it.restartIndex+1) < it.current {
		it.restartIndex++
	}
	return true
}

// decodeEntry decodes the three varint lengths at the start of p. It fails if
// any varint is malformed or the key suffix and value would run past p.
func decodeEntry(p []byte) (shared, unshared, valueLen, n uint32, ok bool) {
	var vals [3]uint64
	off := 0
	for i := range vals {
		v, w := binary.Uvarint(p[off:])
		if w <= 0 || v > math.MaxUint32 {
			return 0, 0, 0, 0, false
		}
		vals[i] = v
		off += w
	}
	if vals[1]+vals[2] > uint64(len(p)-off) {
		return 0, 0, 0, 0, false
	}
	return uint32(vals[0]), uint32(vals[1]), uint32(vals[2]), uint32(off), true
}
