package block

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Builder constructs a sorted, prefix-compressed block.
//
// Each record is
//
//	shared    uvarint  bytes shared with the previous key
//	unshared  uvarint  length of the key suffix that follows
//	valueLen  uvarint
//	key[shared:]
//	value
//
// and the block ends with the restart offsets and their count, each a
// little-endian uint32. Every restartInterval records the shared prefix is
// reset to zero so the full key is stored.
type Builder struct {
	cmp             Comparator
	restartInterval int
	buf             []byte
	restarts        []uint32
	counter         int
	entries         int
	lastKey         []byte
	finished        bool
	scratch         [3 * binary.MaxVarintLen32]byte
}

// NewBuilder creates a block builder. A restartInterval below 1 is treated as 1.
func NewBuilder(restartInterval int, cmp Comparator) *Builder {
	if restartInterval < 1 {
		restartInterval = 1
	}
	if cmp == nil {
		cmp = Bytewise
	}
	return &Builder{
		cmp:             cmp,
		restartInterval: restartInterval,
		restarts:        []uint32{0},
	}
}

// Add appends a key-value pair. Keys must be strictly increasing.
func (b *Builder) Add(key, value []byte) error {
	if b.finished {
		return errors.New("add after finish")
	}
	if b.entries > 0 && b.cmp.Compare(key, b.lastKey) <= 0 {
		return fmt.Errorf("%w: got %q after %q", ErrKeyOrder, key, b.lastKey)
	}

	shared := 0
	if b.counter < b.restartInterval {
		n := len(key)
		if len(b.lastKey) < n {
			n = len(b.lastKey)
		}
		for shared < n && b.lastKey[shared] == key[shared] {
			shared++
		}
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buf)))
		b.counter = 0
	}

	n := binary.PutUvarint(b.scratch[0:], uint64(shared))
	n += binary.PutUvarint(b.scratch[n:], uint64(len(key)-shared))
	n += binary.PutUvarint(b.scratch[n:], uint64(len(value)))
	b.buf = append(b.buf, b.scratch[:n]...)
	b.buf = append(b.buf, key[shared:]...)
	b.buf = append(b.buf, value...)

	b.lastKey = append(b.lastKey[:shared], key[shared:]...)
	b.counter++
	b.entries++
	return nil
}

// Finish appends the restart array and returns the encoded block. The slice
// remains valid until Reset is called.
func (b *Builder) Finish() []byte {
	if b.finished {
		return b.buf
	}
	for _, r := range b.restarts {
		b.buf = binary.LittleEndian.AppendUint32(b.buf, r)
	}
	b.buf = binary.LittleEndian.AppendUint32(b.buf, uint32(len(b.restarts)))
	b.finished = true
	return b.buf
}

// Reset clears the builder state so it can build another block
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = append(b.restarts[:0], 0)
	b.counter = 0
	b.entries = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// EstimatedSize returns the size of the block if Finish were called now
func (b *Builder) EstimatedSize() int {
	return len(b.buf) + len(b.restarts)*restartEntrySize + restartEntrySize
}

// Entries returns the number of records added since the last Reset
func (b *Builder) Entries() int {
	return b.entries
}

// Empty reports whether no records have been added
func (b *Builder) Empty() bool {
	return b.entries == 0
}

// LastKey returns the most recently added key
func (b *Builder) LastKey() []byte {
	return b.lastKey
}
