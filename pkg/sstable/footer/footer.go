package footer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/KevoDB/tablestore/pkg/common/status"
)

const (
	// EncodedLength is the fixed size of the footer in bytes
	EncodedLength = 2*MaxEncodedLength + 8
	// Magic identifies a table file; it is the last 8 bytes of every table
	Magic = uint64(0xdb4775248b80fb57)
)

var (
	// ErrBadMagic indicates the file does not end in the table magic number
	ErrBadMagic = fmt.Errorf("%w: not a table file (bad magic number)", status.ErrCorruption)
	// ErrTruncatedFooter indicates fewer than EncodedLength bytes were supplied
	ErrTruncatedFooter = fmt.Errorf("%w: truncated footer", status.ErrCorruption)
)

// Footer is the fixed-length trailer of a table file
type Footer struct {
	// MetaindexHandle locates the block naming the meta blocks
	MetaindexHandle BlockHandle
	// IndexHandle locates the block mapping data-block keys to handles
	IndexHandle BlockHandle
}

// Encode serializes the footer. Handles are zero-padded so the result is
// always EncodedLength bytes.
func (f *Footer) Encode() []byte {
	result := make([]byte, 0, EncodedLength)
	result = f.MetaindexHandle.EncodeTo(result)
	result = f.IndexHandle.EncodeTo(result)
	result = result[:2*MaxEncodedLength]
	return binary.LittleEndian.AppendUint64(result, Magic)
}

// WriteTo writes the footer to an io.Writer
func (f *Footer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Encode())
	return int64(n), err
}

// Decode parses a footer from the first EncodedLength bytes of data
func Decode(data []byte) (*Footer, error) {
	if len(data) < EncodedLength {
		return nil, fmt.Errorf("%w: %d bytes, expected %d",
			ErrTruncatedFooter, len(data), EncodedLength)
	}
	data = data[:EncodedLength]

	magic := binary.LittleEndian.Uint64(data[EncodedLength-8:])
	if magic != Magic {
		return nil, fmt.Errorf("%w: %x", ErrBadMagic, magic)
	}

	metaindex, rest, err := DecodeBlockHandle(data)
	if err != nil {
		return nil, fmt.Errorf("metaindex handle: %w", err)
	}
	index, _, err := DecodeBlockHandle(rest)
	if err != nil {
		return nil, fmt.Errorf("index handle: %w", err)
	}

	return &Footer{MetaindexHandle: metaindex, IndexHandle: index}, nil
}
