// Package wal defines the frame format of the write-ahead log.
//
// A log file is a sequence of 32 KiB blocks. Each logical record is stored
// as one or more fragments, each with a seven byte header:
//
//	checksum uint32 (masked CRC-32C of type byte and payload)
//	length   uint16
//	type     uint8
//
// followed by length payload bytes. A fragment never crosses a block
// boundary. When fewer than HeaderSize bytes remain in a block they are
// filled with zeros and the next fragment starts at the following block.
package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/KevoDB/tablestore/pkg/common/crc"
	"github.com/KevoDB/tablestore/pkg/common/status"
)

// RecordType tags a fragment with its position in a logical record
type RecordType uint8

const (
	// ZeroType is reserved for preallocated and padding bytes. It is never
	// written as a fragment type.
	ZeroType RecordType = 0

	FullType   RecordType = 1
	FirstType  RecordType = 2
	MiddleType RecordType = 3
	LastType   RecordType = 4

	// MaxRecordType is the largest valid fragment type
	MaxRecordType = LastType
)

const (
	// BlockSize is the size of a physical log block
	BlockSize = 32768

	// HeaderSize is checksum (4 bytes), length (2 bytes) and type (1 byte)
	HeaderSize = 4 + 2 + 1
)

var (
	// ErrShortHeader indicates fewer than HeaderSize bytes were supplied
	ErrShortHeader = fmt.Errorf("%w: short log fragment header", status.ErrMalformed)
	// ErrBadRecordType indicates a header carries an unknown fragment type
	ErrBadRecordType = fmt.Errorf("%w: bad log record type", status.ErrCorruption)
	// ErrChecksumMismatch indicates a fragment's payload does not match its header
	ErrChecksumMismatch = fmt.Errorf("%w: log fragment checksum mismatch", status.ErrCorruption)
	// ErrBadLength indicates a header's length exceeds the bytes available
	ErrBadLength = fmt.Errorf("%w: bad log fragment length", status.ErrCorruption)
)

func (t RecordType) String() string {
	switch t {
	case ZeroType:
		return "zero"
	case FullType:
		return "full"
	case FirstType:
		return "first"
	case MiddleType:
		return "middle"
	case LastType:
		return "last"
	default:
		return fmt.Sprintf("RecordType(%d)", uint8(t))
	}
}

// Header is the fixed-size prefix of every fragment
type Header struct {
	Checksum uint32
	Length   uint16
	Type     RecordType
}

// Encode appends the encoded header to dst
func (h Header) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.Checksum)
	dst = binary.LittleEndian.AppendUint16(dst, h.Length)
	return append(dst, byte(h.Type))
}

// DecodeHeader parses the first HeaderSize bytes of b. A ZeroType header is
// returned without error so callers can recognise padding.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Checksum: binary.LittleEndian.Uint32(b[0:4]),
		Length:   binary.LittleEndian.Uint16(b[4:6]),
		Type:     RecordType(b[6]),
	}
	if h.Type > MaxRecordType {
		return Header{}, fmt.Errorf("%w: %d", ErrBadRecordType, b[6])
	}
	return h, nil
}

// Verify checks payload against the header's length and checksum
func (h Header) Verify(payload []byte) error {
	if int(h.Length) != len(payload) {
		return fmt.Errorf("%w: header says %d, have %d", ErrBadLength, h.Length, len(payload))
	}
	if Checksum(h.Type, payload) != h.Checksum {
		return ErrChecksumMismatch
	}
	return nil
}

// Checksum returns the masked CRC-32C of the type byte followed by payload
func Checksum(t RecordType, payload []byte) uint32 {
	c := crc.Value([]byte{byte(t)})
	return crc.Mask(crc.Extend(c, payload))
}

// Fragment describes one physical piece of a logical record
type Fragment struct {
	Type RecordType
	// Offset and Length locate the fragment's payload within the record
	Offset int
	Length int
	// Padding is the number of zero bytes that end the previous block
	// before this fragment's header
	Padding int
	// BlockOffset is where the header starts within its block
	BlockOffset int
}

// Split plans how a record of n bytes is written when the current block
// already holds blockOffset bytes (0 <= blockOffset <= BlockSize). It
// returns the fragments in write order and the block offset after the last
// one. An empty record still produces a single Full fragment.
func Split(blockOffset, n int) ([]Fragment, int) {
	if blockOffset < 0 || blockOffset > BlockSize {
		panic(fmt.Sprintf("wal: block offset %d out of range", blockOffset))
	}

	var frags []Fragment
	left := n
	off := 0
	begin := true
	for {
		pad := 0
		if leftover := BlockSize - blockOffset; leftover < HeaderSize {
			pad = leftover
			blockOffset = 0
		}

		avail := BlockSize - blockOffset - HeaderSize
		length := min(left, avail)
		end := length == left

		var t RecordType
		switch {
		case begin && end:
			t = FullType
		case begin:
			t = FirstType
		case end:
			t = LastType
		default:
			t = MiddleType
		}

		frags = append(frags, Fragment{
			Type:        t,
			Offset:      off,
			Length:      length,
			Padding:     pad,
			BlockOffset: blockOffset,
		})

		off += length
		left -= length
		blockOffset += HeaderSize + length
		begin = false
		if left == 0 {
			return frags, blockOffset
		}
	}
}

// EncodeFragment appends a header and payload of type t to dst
func EncodeFragment(dst []byte, t RecordType, payload []byte) []byte {
	if len(payload) > BlockSize-HeaderSize {
		panic(fmt.Sprintf("wal: fragment payload of %d bytes does not fit a block", len(payload)))
	}
	h := Header{
		Checksum: Checksum(t, payload),
		Length:   uint16(len(payload)),
		Type:     t,
	}
	return append(h.Encode(dst), payload...)
}

// AppendRecord appends the bytes that store record when the current block
// already holds blockOffset bytes, including any block trailer padding. It
// returns the extended slice and the new block offset.
func AppendRecord(dst []byte, blockOffset int, record []byte) ([]byte, int) {
	frags, end := Split(blockOffset, len(record))
	for _, f := range frags {
		for i := 0; i < f.Padding; i++ {
			dst = append(dst, 0)
		}
		dst = EncodeFragment(dst, f.Type, record[f.Offset:f.Offset+f.Length])
	}
	return dst, end
}
