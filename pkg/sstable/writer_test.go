package sstable

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/KevoDB/tablestore/pkg/common/log"
	"github.com/KevoDB/tablestore/pkg/sstable/block"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/sstable/footer"
)

func TestWriterBasics(t *testing.T) {
	tempDir := t.TempDir()
	sstablePath := filepath.Join(tempDir, "000001.ldb")

	writer, err := NewWriter(OSFileSystem{}, sstablePath, DefaultWriterOptions())
	if err != nil {
		t.Fatalf("Failed to create SSTable writer: %v", err)
	}

	numEntries := 100
	for i := 0; i < numEntries; i++ {
		if err := writer.Add(testKey(i), testValue(i)); err != nil {
			t.Fatalf("Failed to add entry: %v", err)
		}
	}
	if writer.NumEntries() != uint64(numEntries) {
		t.Errorf("Expected %d entries, got %d", numEntries, writer.NumEntries())
	}

	size, err := writer.Finish()
	if err != nil {
		t.Fatalf("Failed to finish SSTable: %v", err)
	}

	stat, err := os.Stat(sstablePath)
	if err != nil {
		t.Fatalf("SSTable file %s does not exist after Finish(): %v", sstablePath, err)
	}
	if uint64(stat.Size()) != size {
		t.Errorf("Finish reported %d bytes, file has %d", size, stat.Size())
	}

	file, err := OSFileSystem{}.Open(sstablePath)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	table, err := Open(file, size, ReaderOptions{Logger: log.NewNopLogger()})
	if err != nil {
		t.Fatalf("Failed to open SSTable: %v", err)
	}

	count := 0
	iter := table.NewIterator(DefaultReadOptions())
	defer iter.Close()
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		count++
	}
	if count != numEntries {
		t.Errorf("Expected %d entries, got %d", numEntries, count)
	}
}

func TestWriterAbort(t *testing.T) {
	tempDir := t.TempDir()
	sstablePath := filepath.Join(tempDir, "000002.ldb")

	writer, err := NewWriter(OSFileSystem{}, sstablePath, DefaultWriterOptions())
	if err != nil {
		t.Fatalf("Failed to create SSTable writer: %v", err)
	}

	for i := 0; i < 10; i++ {
		writer.Add(testKey(i), testValue(i))
	}

	tmpPath := filepath.Join(filepath.Dir(sstablePath), fmt.Sprintf(".%s.tmp", filepath.Base(sstablePath)))
	if _, err := os.Stat(tmpPath); err != nil {
		t.Fatalf("Temp file should exist while writing: %v", err)
	}

	if err := writer.Abort(); err != nil {
		t.Fatalf("Failed to abort SSTable: %v", err)
	}

	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Errorf("Temp file %s still exists after abort", tmpPath)
	}
	if _, err := os.Stat(sstablePath); !os.IsNotExist(err) {
		t.Errorf("SSTable file %s exists after abort", sstablePath)
	}
	if err := writer.Add([]byte("zzz"), nil); !errors.Is(err, ErrBuilderClosed) {
		t.Errorf("Expected ErrBuilderClosed after abort, got %v", err)
	}
}

func TestWriterKeyOrder(t *testing.T) {
	writer, err := NewWriter(NewMemFileSystem(), "000003.ldb", DefaultWriterOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Abort()

	if err := writer.Add([]byte("b"), nil); err != nil {
		t.Fatal(err)
	}
	if err := writer.Add([]byte("a"), nil); !errors.Is(err, block.ErrKeyOrder) {
		t.Errorf("Expected ErrKeyOrder, got %v", err)
	}
	if err := writer.Add([]byte("b"), nil); !errors.Is(err, block.ErrKeyOrder) {
		t.Errorf("Expected ErrKeyOrder for duplicate key, got %v", err)
	}
}

func TestWriterUnknownCompression(t *testing.T) {
	opts := DefaultWriterOptions()
	opts.Compression = compression.Zstd
	opts.Codecs = compression.NewRegistry(compression.SnappyCodec{})

	fs := NewMemFileSystem()
	if _, err := NewWriter(fs, "000004.ldb", opts); !errors.Is(err, compression.ErrUnknownCodec) {
		t.Errorf("Expected ErrUnknownCodec, got %v", err)
	}
	if _, err := fs.ReadFile(".000004.ldb.tmp"); err == nil {
		t.Error("temp file should be removed when the writer cannot be created")
	}
}

func TestBuilderLayout(t *testing.T) {
	opts := DefaultWriterOptions()
	opts.BlockSize = 256
	opts.FilterPolicy = NewBloomFilterPolicy(10)
	data := buildTable(t, 200, opts)

	ft, err := footer.Decode(data[len(data)-footer.EncodedLength:])
	if err != nil {
		t.Fatalf("Failed to decode footer: %v", err)
	}

	// The index block is written last, right before the footer
	indexEnd := ft.IndexHandle.Offset + ft.IndexHandle.Size + BlockTrailerSize
	if indexEnd != uint64(len(data)-footer.EncodedLength) {
		t.Errorf("index block ends at %d, footer starts at %d", indexEnd, len(data)-footer.EncodedLength)
	}
	metaEnd := ft.MetaindexHandle.Offset + ft.MetaindexHandle.Size + BlockTrailerSize
	if metaEnd != ft.IndexHandle.Offset {
		t.Errorf("metaindex ends at %d, index starts at %d", metaEnd, ft.IndexHandle.Offset)
	}

	file := &readerAtFile{data: data}
	contents, err := ReadBlock(file, nil, ReadOptions{}, ft.MetaindexHandle)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := block.New(contents)
	if err != nil {
		t.Fatal(err)
	}
	iter := meta.NewIterator(block.Bytewise)
	iter.SeekToFirst()
	if want := "filter." + opts.FilterPolicy.Name(); string(iter.Key()) != want {
		t.Errorf("metaindex key %q, expected %q", iter.Key(), want)
	}

	// Index keys separate blocks: every key in block i is <= index key i
	contents, err = ReadBlock(file, nil, ReadOptions{}, ft.IndexHandle)
	if err != nil {
		t.Fatal(err)
	}
	index, err := block.New(contents)
	if err != nil {
		t.Fatal(err)
	}
	if index.NumRestarts() < 2 {
		t.Fatalf("expected several data blocks, got %d", index.NumRestarts())
	}

	var prevLimit []byte
	iiter := index.NewIterator(block.Bytewise)
	for iiter.SeekToFirst(); iiter.Valid(); iiter.Next() {
		handle, _, err := footer.DecodeBlockHandle(iiter.Value())
		if err != nil {
			t.Fatal(err)
		}
		contents, err := ReadBlock(file, nil, ReadOptions{}, handle)
		if err != nil {
			t.Fatal(err)
		}
		blk, err := block.New(contents)
		if err != nil {
			t.Fatal(err)
		}
		diter := blk.NewIterator(block.Bytewise)
		for diter.SeekToFirst(); diter.Valid(); diter.Next() {
			if bytes.Compare(diter.Key(), iiter.Key()) > 0 {
				t.Errorf("key %q is past its index key %q", diter.Key(), iiter.Key())
			}
			if prevLimit != nil && bytes.Compare(diter.Key(), prevLimit) <= 0 {
				t.Errorf("key %q is not past the previous index key %q", diter.Key(), prevLimit)
			}
		}
		prevLimit = append(prevLimit[:0], iiter.Key()...)
	}
}

func TestBuilderCompressionThreshold(t *testing.T) {
	registry, err := compression.DefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	opts := DefaultWriterOptions()
	opts.Compression = compression.Snappy
	opts.Codecs = registry

	var buf bytes.Buffer
	builder, err := NewBuilder(&buf, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := builder.Add([]byte("k"), bytes.Repeat([]byte("a"), 2000)); err != nil {
		t.Fatal(err)
	}
	if err := builder.Finish(); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	if len(data) >= 2000 {
		t.Errorf("repetitive block should have been compressed, table is %d bytes", len(data))
	}

	ft, err := footer.Decode(data[len(data)-footer.EncodedLength:])
	if err != nil {
		t.Fatal(err)
	}
	// The tiny index block cannot shrink by an eighth and stays uncompressed
	typ := data[ft.IndexHandle.Offset+ft.IndexHandle.Size]
	if compression.Type(typ) != compression.None {
		t.Errorf("index block type %v, expected none", compression.Type(typ))
	}
}

func TestBuilderEmptyTable(t *testing.T) {
	data := buildTable(t, 0, DefaultWriterOptions())

	table, _ := openMem(t, data, ReaderOptions{})
	iter := table.NewIterator(DefaultReadOptions())
	defer iter.Close()

	iter.SeekToFirst()
	if iter.Valid() {
		t.Error("empty table should have no entries")
	}
	if iter.Seek([]byte("a")) {
		t.Error("seek in empty table should fail")
	}
	if table.IndexEntries() != 0 {
		t.Errorf("expected no index entries, got %d", table.IndexEntries())
	}
}

func TestBuilderFinishTwice(t *testing.T) {
	var buf bytes.Buffer
	builder, err := NewBuilder(&buf, DefaultWriterOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := builder.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := builder.Finish(); !errors.Is(err, ErrBuilderClosed) {
		t.Errorf("Expected ErrBuilderClosed, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left") }

func TestBuilderWriteError(t *testing.T) {
	opts := DefaultWriterOptions()
	opts.BlockSize = 64
	builder, err := NewBuilder(failingWriter{}, opts)
	if err != nil {
		t.Fatal(err)
	}

	var firstErr error
	for i := 0; i < 100 && firstErr == nil; i++ {
		firstErr = builder.Add(testKey(i), testValue(i))
	}
	if firstErr == nil {
		t.Fatal("expected a write error once a block was flushed")
	}
	if err := builder.Add([]byte("zzzzzz"), nil); !errors.Is(err, firstErr) {
		t.Errorf("builder should keep returning the first error, got %v", err)
	}
}
