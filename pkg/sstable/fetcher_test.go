package sstable

import (
	"bytes"
	"errors"
	"testing"

	"github.com/KevoDB/tablestore/pkg/common/status"
	"github.com/KevoDB/tablestore/pkg/sstable/block"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/sstable/footer"
)

// writeSingleBlock encodes one block with trailer and returns the bytes and handle
func writeSingleBlock(t *testing.T, contents []byte, typ compression.Type) ([]byte, footer.BlockHandle) {
	t.Helper()
	var buf bytes.Buffer
	b := &Builder{w: &buf}
	handle, err := b.writeRawBlock(contents, typ)
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), handle
}

func sampleBlock(t *testing.T) []byte {
	t.Helper()
	builder := block.NewBuilder(block.DefaultRestartInterval, block.Bytewise)
	for i := 0; i < 50; i++ {
		if err := builder.Add(testKey(i), testValue(i)); err != nil {
			t.Fatal(err)
		}
	}
	return append([]byte(nil), builder.Finish()...)
}

func TestReadBlockCopy(t *testing.T) {
	raw := sampleBlock(t)
	data, handle := writeSingleBlock(t, raw, compression.None)

	contents, err := ReadBlock(&readerAtFile{data: data}, nil, ReadOptions{}, handle)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if !bytes.Equal(contents.Data, raw) {
		t.Error("block contents differ")
	}
	if !contents.Cachable || !contents.HeapAllocated {
		t.Errorf("copied block should be cachable and heap allocated: %+v", contents)
	}
}

func TestReadBlockZeroCopy(t *testing.T) {
	raw := sampleBlock(t)
	data, handle := writeSingleBlock(t, raw, compression.None)

	fs := NewMemFileSystem()
	fs.WriteFile("block", data)
	file, err := fs.Open("block")
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	contents, err := ReadBlock(file, nil, ReadOptions{}, handle)
	if err != nil {
		t.Fatalf("ReadBlock failed: %v", err)
	}
	if !bytes.Equal(contents.Data, raw) {
		t.Error("block contents differ")
	}
	if contents.Cachable || contents.HeapAllocated {
		t.Errorf("view into file should be neither cachable nor heap allocated: %+v", contents)
	}
	if cap(contents.Data) != len(contents.Data) {
		t.Error("view must not expose the trailer through its capacity")
	}
}

func TestReadBlockCompressed(t *testing.T) {
	registry, err := compression.DefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	raw := sampleBlock(t)
	for _, typ := range []compression.Type{compression.Snappy, compression.Zlib, compression.Zstd} {
		codec, _ := registry.Lookup(typ)
		compressed, err := codec.Encode(nil, raw)
		if err != nil {
			t.Fatal(err)
		}
		data, handle := writeSingleBlock(t, compressed, typ)

		contents, err := ReadBlock(&readerAtFile{data: data}, registry, ReadOptions{}, handle)
		if err != nil {
			t.Fatalf("%v: ReadBlock failed: %v", typ, err)
		}
		if !bytes.Equal(contents.Data, raw) {
			t.Errorf("%v: decompressed contents differ", typ)
		}
		if contents.Cachable || !contents.HeapAllocated {
			t.Errorf("%v: expected heap allocated, uncachable: %+v", typ, contents)
		}

		contents, err = ReadBlock(&readerAtFile{data: data}, registry, ReadOptions{CacheDecompressed: true}, handle)
		if err != nil {
			t.Fatal(err)
		}
		if !contents.Cachable {
			t.Errorf("%v: CacheDecompressed should mark the block cachable", typ)
		}
	}
}

func TestReadBlockUnknownType(t *testing.T) {
	data, handle := writeSingleBlock(t, []byte("payload"), compression.Type(42))

	_, err := ReadBlock(&readerAtFile{data: data}, compression.NewRegistry(), ReadOptions{}, handle)
	if !errors.Is(err, ErrBadBlockType) {
		t.Errorf("Expected ErrBadBlockType, got %v", err)
	}
}

func TestReadBlockChecksumBitFlips(t *testing.T) {
	raw := sampleBlock(t)
	data, handle := writeSingleBlock(t, raw, compression.None)

	if _, err := ReadBlock(&readerAtFile{data: data}, nil, ReadOptions{}, handle); err != nil {
		t.Fatalf("unmodified block should read cleanly: %v", err)
	}

	for i := 0; i < len(data); i++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := append([]byte(nil), data...)
			corrupted[i] ^= 1 << bit

			_, err := ReadBlock(&readerAtFile{data: corrupted}, nil, ReadOptions{}, handle)
			if !errors.Is(err, ErrChecksumMismatch) {
				t.Fatalf("flip byte %d bit %d: expected ErrChecksumMismatch, got %v", i, bit, err)
			}
			if !status.IsCorruption(err) {
				t.Fatalf("flip byte %d bit %d: expected corruption category", i, bit)
			}
		}
	}
}

func TestReadBlockTruncated(t *testing.T) {
	data, handle := writeSingleBlock(t, sampleBlock(t), compression.None)

	for _, file := range []RandomAccessFile{
		&readerAtFile{data: data[:len(data)-1]},
		&memFile{fs: NewMemFileSystem(), data: data[:len(data)-1]},
	} {
		_, err := ReadBlock(file, nil, ReadOptions{}, handle)
		if !errors.Is(err, ErrTruncatedBlock) {
			t.Errorf("%T: expected ErrTruncatedBlock, got %v", file, err)
		}
	}

	huge := footer.BlockHandle{Offset: 0, Size: 1 << 40}
	if _, err := ReadBlock(&readerAtFile{data: data}, nil, ReadOptions{}, huge); !status.IsCorruption(err) {
		t.Errorf("oversized handle: expected corruption, got %v", err)
	}
}

type failingFile struct{}

func (failingFile) ReadAt([]byte, int64) (int, error) { return 0, errors.New("disk on fire") }
func (failingFile) Close() error                      { return nil }

func TestReadBlockIOError(t *testing.T) {
	_, err := ReadBlock(failingFile{}, nil, ReadOptions{}, footer.BlockHandle{Size: 10})
	if !status.IsIO(err) {
		t.Errorf("Expected io category, got %v", err)
	}
}
