package block

import (
	"encoding/binary"
	"fmt"
)

// Block is a decoded, immutable block. It is safe for concurrent use; each
// goroutine should create its own Iterator.
type Block struct {
	data          []byte
	restartOffset uint32
	numRestarts   uint32
}

// New validates the restart array of contents and returns a Block over it.
// The Block does not copy contents.Data.
func New(contents Contents) (*Block, error) {
	data := contents.Data
	if len(data) < restartEntrySize {
		return nil, fmt.Errorf("%w: block of %d bytes has no restart count",
			ErrCorruptBlock, len(data))
	}

	numRestarts := binary.LittleEndian.Uint32(data[len(data)-restartEntrySize:])
	maxRestarts := uint64(len(data)-restartEntrySize) / restartEntrySize
	if uint64(numRestarts) > maxRestarts {
		return nil, fmt.Errorf("%w: %d restarts do not fit in %d bytes",
			ErrCorruptBlock, numRestarts, len(data))
	}

	return &Block{
		data:          data,
		restartOffset: uint32(len(data)) - (numRestarts+1)*restartEntrySize,
		numRestarts:   numRestarts,
	}, nil
}

// Size returns the encoded size of the block, restart array included
func (b *Block) Size() int {
	return len(b.data)
}

// NumRestarts returns the number of restart points
func (b *Block) NumRestarts() int {
	return int(b.numRestarts)
}

// NewIterator returns an iterator over the block ordered by cmp
func (b *Block) NewIterator(cmp Comparator) *Iterator {
	if cmp == nil {
		cmp = Bytewise
	}
	return &Iterator{
		cmp:          cmp,
		data:         b.data,
		restarts:     b.restartOffset,
		numRestarts:  b.numRestarts,
		current:      b.restartOffset,
		restartIndex: b.numRestarts,
	}
}
