package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/KevoDB/tablestore/pkg/common/crc"
	"github.com/KevoDB/tablestore/pkg/common/status"
	"github.com/KevoDB/tablestore/pkg/sstable/block"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/sstable/footer"
)

// ReadOptions control a single read through a table
type ReadOptions struct {
	// FillCache inserts blocks read from storage into the block cache
	FillCache bool
	// CacheDecompressed allows decompressed buffers to be marked cachable
	CacheDecompressed bool
}

// DefaultReadOptions fills the block cache and leaves decompressed blocks uncached
func DefaultReadOptions() ReadOptions {
	return ReadOptions{FillCache: true}
}

// ReadBlock reads the block at handle, verifies its trailer checksum and
// decompresses it if needed. Nothing is returned unless the checksum matches.
func ReadBlock(file RandomAccessFile, codecs *compression.Registry, opts ReadOptions,
	handle footer.BlockHandle) (block.Contents, error) {

	if handle.Size > math.MaxInt32-BlockTrailerSize || handle.Offset > math.MaxInt64 {
		return block.Contents{}, fmt.Errorf("%w: block %v is too large", ErrTruncatedBlock, handle)
	}
	size := int(handle.Size)
	n := size + BlockTrailerSize

	var buf []byte
	view := false
	if viewer, ok := file.(ByteViewer); ok {
		data, err := viewer.ViewAt(int64(handle.Offset), n)
		if err != nil && !errors.Is(err, io.EOF) {
			return block.Contents{}, fmt.Errorf("%w: read block %v: %v", status.ErrIO, handle, err)
		}
		buf = data
		view = true
	} else {
		buf = make([]byte, n)
		read, err := file.ReadAt(buf, int64(handle.Offset))
		if err != nil && !errors.Is(err, io.EOF) {
			return block.Contents{}, fmt.Errorf("%w: read block %v: %v", status.ErrIO, handle, err)
		}
		buf = buf[:read]
	}
	if len(buf) != n {
		return block.Contents{}, fmt.Errorf("%w: block %v: got %d of %d bytes",
			ErrTruncatedBlock, handle, len(buf), n)
	}

	stored := crc.Unmask(binary.LittleEndian.Uint32(buf[size+1:]))
	if actual := crc.Value(buf[:size+1]); actual != stored {
		return block.Contents{}, fmt.Errorf("%w: block %v: stored %08x, computed %08x",
			ErrChecksumMismatch, handle, stored, actual)
	}

	data := buf[:size:size]
	typ := compression.Type(buf[size])
	if typ == compression.None {
		if view {
			return block.Contents{Data: data}, nil
		}
		return block.Contents{Data: data, Cachable: true, HeapAllocated: true}, nil
	}

	codec, err := codecs.Lookup(typ)
	if err != nil {
		return block.Contents{}, fmt.Errorf("%w: %d at %v: %v", ErrBadBlockType, byte(typ), handle, err)
	}
	decoded, err := codec.Decode(nil, data)
	if err != nil {
		return block.Contents{}, fmt.Errorf("block %v: %w", handle, err)
	}
	return block.Contents{
		Data:          decoded,
		Cachable:      opts.CacheDecompressed,
		HeapAllocated: true,
	}, nil
}

// blockTrailer returns the trailer for data compressed with typ
func blockTrailer(data []byte, typ compression.Type) [BlockTrailerSize]byte {
	var trailer [BlockTrailerSize]byte
	trailer[0] = byte(typ)
	sum := crc.Extend(crc.Value(data), trailer[:1])
	binary.LittleEndian.PutUint32(trailer[1:], crc.Mask(sum))
	return trailer
}
