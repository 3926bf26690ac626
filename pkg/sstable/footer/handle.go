package footer

import (
	"encoding/binary"
	"fmt"

	"github.com/KevoDB/tablestore/pkg/common/status"
)

// MaxEncodedLength is the largest possible encoding of a BlockHandle
const MaxEncodedLength = 2 * binary.MaxVarintLen64

// ErrBadBlockHandle indicates a truncated or malformed block handle
var ErrBadBlockHandle = fmt.Errorf("%w: bad block handle", status.ErrMalformed)

// BlockHandle points at a block inside a table file. Size excludes the
// block trailer.
type BlockHandle struct {
	Offset uint64
	Size   uint64
}

// EncodeTo appends the varint encoding of h to dst
func (h BlockHandle) EncodeTo(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	return binary.AppendUvarint(dst, h.Size)
}

// Encode returns the varint encoding of h
func (h BlockHandle) Encode() []byte {
	return h.EncodeTo(make([]byte, 0, MaxEncodedLength))
}

func (h BlockHandle) String() string {
	return fmt.Sprintf("{offset=%d size=%d}", h.Offset, h.Size)
}

// DecodeBlockHandle decodes a handle from the front of data and returns the
// unconsumed remainder.
func DecodeBlockHandle(data []byte) (BlockHandle, []byte, error) {
	offset, n := binary.Uvarint(data)
	if n <= 0 {
		return BlockHandle{}, data, fmt.Errorf("%w: offset", ErrBadBlockHandle)
	}
	size, m := binary.Uvarint(data[n:])
	if m <= 0 {
		return BlockHandle{}, data, fmt.Errorf("%w: size", ErrBadBlockHandle)
	}
	return BlockHandle{Offset: offset, Size: size}, data[n+m:], nil
}
