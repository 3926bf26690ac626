package sstable

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
)

// RandomAccessFile is a file that supports positioned reads from many
// goroutines at once.
type RandomAccessFile interface {
	io.ReaderAt
	io.Closer
}

// ByteViewer is implemented by files whose contents already live in memory.
// ViewAt returns a slice aliasing the file contents that stays valid for the
// life of the file and must not be modified.
type ByteViewer interface {
	ViewAt(offset int64, n int) ([]byte, error)
}

// WritableFile is the sink a Writer streams a new table into
type WritableFile interface {
	io.Writer
	Sync() error
	Close() error
}

// FileSystem is the storage a table cache and a Writer operate on. Open
// reports a missing file with an error satisfying errors.Is(err, fs.ErrNotExist).
type FileSystem interface {
	Open(name string) (RandomAccessFile, error)
	Create(name string) (WritableFile, error)
	Rename(oldname, newname string) error
	Remove(name string) error
}

// OSFileSystem is a FileSystem backed by the operating system
type OSFileSystem struct{}

func (OSFileSystem) Open(name string) (RandomAccessFile, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return &osFile{file: file}, nil
}

func (OSFileSystem) Create(name string) (WritableFile, error) {
	return os.Create(name)
}

func (OSFileSystem) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// osFile guards against reads after Close so a released table fails
// cleanly instead of reading a recycled descriptor.
type osFile struct {
	mu   sync.RWMutex
	file *os.File
}

func (f *osFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.file == nil {
		return 0, fmt.Errorf("file is closed")
	}
	return f.file.ReadAt(p, off)
}

func (f *osFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// MemFileSystem keeps files in memory. Opened files implement ByteViewer so
// block reads are zero-copy. It tracks how many opened files are still open.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	open  atomic.Int64
}

// NewMemFileSystem creates an empty in-memory file system
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string][]byte)}
}

func (m *MemFileSystem) Open(name string) (RandomAccessFile, error) {
	m.mu.RLock()
	data, ok := m.files[name]
	m.mu.RUnlock()

	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	m.open.Add(1)
	return &memFile{fs: m, data: data}, nil
}

func (m *MemFileSystem) Create(name string) (WritableFile, error) {
	return &memWritableFile{fs: m, name: name}, nil
}

func (m *MemFileSystem) Rename(oldname, newname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.files[oldname]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldname, Err: fs.ErrNotExist}
	}
	delete(m.files, oldname)
	m.files[newname] = data
	return nil
}

func (m *MemFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, name)
	return nil
}

// WriteFile stores data under name, replacing any existing file
func (m *MemFileSystem) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
}

// ReadFile returns a copy of the named file
func (m *MemFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

// OpenFiles returns the number of files opened and not yet closed
func (m *MemFileSystem) OpenFiles() int64 {
	return m.open.Load()
}

// memFile keeps the contents it was opened with even if the name is later
// removed or replaced.
type memFile struct {
	fs     *MemFileSystem
	data   []byte
	closed atomic.Bool
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, fmt.Errorf("file is closed")
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) ViewAt(off int64, n int) ([]byte, error) {
	if f.closed.Load() {
		return nil, fmt.Errorf("file is closed")
	}
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("invalid view [%d, +%d)", off, n)
	}
	if off >= int64(len(f.data)) {
		return nil, io.EOF
	}
	end := off + int64(n)
	if end > int64(len(f.data)) {
		return f.data[off:len(f.data):len(f.data)], io.EOF
	}
	return f.data[off:end:end], nil
}

func (f *memFile) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		f.fs.open.Add(-1)
	}
	return nil
}

type memWritableFile struct {
	fs     *MemFileSystem
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *memWritableFile) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed file %s", w.name)
	}
	return w.buf.Write(p)
}

// Sync publishes the bytes written so far under the file's name
func (w *memWritableFile) Sync() error {
	if w.closed {
		return nil
	}
	w.fs.WriteFile(w.name, w.buf.Bytes())
	return nil
}

func (w *memWritableFile) Close() error {
	if w.closed {
		return nil
	}
	err := w.Sync()
	w.closed = true
	return err
}
