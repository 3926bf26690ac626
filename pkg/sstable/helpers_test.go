package sstable

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/KevoDB/tablestore/pkg/common/log"
)

// buildTable writes n sequential keys with opts and returns the encoded table
func buildTable(t *testing.T, n int, opts WriterOptions) []byte {
	t.Helper()

	var buf bytes.Buffer
	builder, err := NewBuilder(&buf, opts)
	if err != nil {
		t.Fatalf("Failed to create builder: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := builder.Add(testKey(i), testValue(i)); err != nil {
			t.Fatalf("Failed to add entry %d: %v", i, err)
		}
	}
	if err := builder.Finish(); err != nil {
		t.Fatalf("Failed to finish table: %v", err)
	}
	if builder.FileSize() != uint64(buf.Len()) {
		t.Fatalf("FileSize %d does not match written bytes %d", builder.FileSize(), buf.Len())
	}
	return buf.Bytes()
}

func testKey(i int) []byte {
	return []byte(fmt.Sprintf("key%06d", i))
}

func testValue(i int) []byte {
	return []byte(fmt.Sprintf("value-%d-%s", i, bytes.Repeat([]byte{'v'}, i%17)))
}

// openMem opens data as a table backed by a MemFileSystem file
func openMem(t *testing.T, data []byte, opts ReaderOptions) (*Table, RandomAccessFile) {
	t.Helper()

	fs := NewMemFileSystem()
	fs.WriteFile("table", data)
	file, err := fs.Open("table")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	table, err := Open(file, uint64(len(data)), opts)
	if err != nil {
		file.Close()
		t.Fatalf("Failed to open table: %v", err)
	}
	t.Cleanup(func() { file.Close() })
	return table, file
}

// readerAtFile hides ByteViewer so reads take the copying path
type readerAtFile struct {
	data []byte
}

func (f *readerAtFile) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(f.data).ReadAt(p, off)
}

func (f *readerAtFile) Close() error {
	return nil
}
