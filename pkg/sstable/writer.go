package sstable

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/KevoDB/tablestore/pkg/sstable/block"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/sstable/footer"
)

// WriterOptions configures table construction
type WriterOptions struct {
	// Comparator orders keys; it must match the one used for reading
	Comparator block.Comparator
	// BlockSize is the target uncompressed size of a data block
	BlockSize int
	// RestartInterval is the number of keys between restart points in data blocks
	RestartInterval int
	// Compression selects the codec applied to blocks
	Compression compression.Type
	// Codecs supplies the codec for Compression
	Codecs *compression.Registry
	// FilterPolicy, if set, adds a filter block
	FilterPolicy FilterPolicy
}

// DefaultWriterOptions returns uncompressed, unfiltered bytewise options
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Comparator:      block.Bytewise,
		BlockSize:       block.DefaultBlockSize,
		RestartInterval: block.DefaultRestartInterval,
		Compression:     compression.None,
	}
}

// Builder streams a table to an io.Writer. Keys must be added in strictly
// increasing order.
type Builder struct {
	w      io.Writer
	opts   WriterOptions
	codec  compression.Codec
	offset uint64

	data   *block.Builder
	index  *block.Builder
	filter *filterBlockBuilder

	lastKey    []byte
	numEntries uint64

	// The index entry for a data block is written once the first key of the
	// next block is known, so a short separator can be chosen.
	pendingIndexEntry bool
	pendingHandle     footer.BlockHandle

	compressed []byte
	closed     bool
	err        error
}

// NewBuilder creates a table builder writing to w
func NewBuilder(w io.Writer, opts WriterOptions) (*Builder, error) {
	if opts.Comparator == nil {
		opts.Comparator = block.Bytewise
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = block.DefaultBlockSize
	}
	if opts.RestartInterval <= 0 {
		opts.RestartInterval = block.DefaultRestartInterval
	}

	b := &Builder{
		w:     w,
		opts:  opts,
		data:  block.NewBuilder(opts.RestartInterval, opts.Comparator),
		index: block.NewBuilder(1, opts.Comparator),
	}

	if opts.Compression != compression.None {
		codec, err := opts.Codecs.Lookup(opts.Compression)
		if err != nil {
			return nil, err
		}
		b.codec = codec
	}
	if opts.FilterPolicy != nil {
		b.filter = newFilterBlockBuilder(opts.FilterPolicy)
		b.filter.StartBlock(0)
	}
	return b, nil
}

// Add appends a key-value pair to the table
func (b *Builder) Add(key, value []byte) error {
	if b.closed {
		return ErrBuilderClosed
	}
	if b.err != nil {
		return b.err
	}
	if b.numEntries > 0 && b.opts.Comparator.Compare(key, b.lastKey) <= 0 {
		return fmt.Errorf("%w: got %q after %q", block.ErrKeyOrder, key, b.lastKey)
	}

	if b.pendingIndexEntry {
		sep := b.opts.Comparator.Separator(nil, b.lastKey, key)
		if err := b.index.Add(sep, b.pendingHandle.Encode()); err != nil {
			return b.fail(err)
		}
		b.pendingIndexEntry = false
	}

	if b.filter != nil {
		b.filter.AddKey(key)
	}

	b.lastKey = append(b.lastKey[:0], key...)
	b.numEntries++
	if err := b.data.Add(key, value); err != nil {
		return b.fail(err)
	}

	if b.data.EstimatedSize() >= b.opts.BlockSize {
		return b.Flush()
	}
	return nil
}

// Flush writes the pending data block, if any. Mostly useful to force
// block boundaries in tests.
func (b *Builder) Flush() error {
	if b.closed {
		return ErrBuilderClosed
	}
	if b.err != nil {
		return b.err
	}
	if b.data.Empty() {
		return nil
	}

	handle, err := b.writeBlock(b.data)
	if err != nil {
		return err
	}
	b.pendingIndexEntry = true
	b.pendingHandle = handle

	if b.filter != nil {
		b.filter.StartBlock(b.offset)
	}
	return nil
}

// writeBlock finishes bb, compresses it when that saves at least an eighth
// of its size, writes it and resets bb.
func (b *Builder) writeBlock(bb *block.Builder) (footer.BlockHandle, error) {
	raw := bb.Finish()
	contents := raw
	typ := compression.None

	if b.codec != nil {
		compressed, err := b.codec.Encode(b.compressed[:0], raw)
		if err == nil && len(compressed) < len(raw)-len(raw)/8 {
			contents = compressed
			typ = b.codec.Type()
		}
		b.compressed = compressed
	}

	handle, err := b.writeRawBlock(contents, typ)
	bb.Reset()
	return handle, err
}

func (b *Builder) writeRawBlock(data []byte, typ compression.Type) (footer.BlockHandle, error) {
	handle := footer.BlockHandle{Offset: b.offset, Size: uint64(len(data))}

	if _, err := b.w.Write(data); err != nil {
		return handle, b.fail(fmt.Errorf("failed to write block: %w", err))
	}
	trailer := blockTrailer(data, typ)
	if _, err := b.w.Write(trailer[:]); err != nil {
		return handle, b.fail(fmt.Errorf("failed to write block trailer: %w", err))
	}

	b.offset += uint64(len(data)) + BlockTrailerSize
	return handle, nil
}

func (b *Builder) fail(err error) error {
	if b.err == nil {
		b.err = err
	}
	return b.err
}

// Finish writes the remaining data, the filter, metaindex and index blocks
// and the footer. The builder cannot be used afterwards.
func (b *Builder) Finish() error {
	if err := b.Flush(); err != nil {
		return err
	}
	b.closed = true

	var filterHandle footer.BlockHandle
	if b.filter != nil {
		handle, err := b.writeRawBlock(b.filter.Finish(), compression.None)
		if err != nil {
			return err
		}
		filterHandle = handle
	}

	meta := block.NewBuilder(b.opts.RestartInterval, block.Bytewise)
	if b.filter != nil {
		key := filterMetaPrefix + b.opts.FilterPolicy.Name()
		if err := meta.Add([]byte(key), filterHandle.Encode()); err != nil {
			return b.fail(err)
		}
	}
	metaHandle, err := b.writeBlock(meta)
	if err != nil {
		return err
	}

	if b.pendingIndexEntry {
		succ := b.opts.Comparator.Successor(nil, b.lastKey)
		if err := b.index.Add(succ, b.pendingHandle.Encode()); err != nil {
			return b.fail(err)
		}
		b.pendingIndexEntry = false
	}
	indexHandle, err := b.writeBlock(b.index)
	if err != nil {
		return err
	}

	ft := footer.Footer{MetaindexHandle: metaHandle, IndexHandle: indexHandle}
	n, err := ft.WriteTo(b.w)
	if err != nil {
		return b.fail(fmt.Errorf("failed to write footer: %w", err))
	}
	b.offset += uint64(n)
	return nil
}

// Abandon marks the builder closed without writing the trailing blocks
func (b *Builder) Abandon() {
	b.closed = true
}

// NumEntries returns the number of keys added so far
func (b *Builder) NumEntries() uint64 {
	return b.numEntries
}

// FileSize returns the number of bytes written so far
func (b *Builder) FileSize() uint64 {
	return b.offset
}

// FileManager writes a table to a temporary name and renames it into place
// once complete, so a partially written table is never visible under its
// final name.
type FileManager struct {
	fs      FileSystem
	path    string
	tmpPath string
	file    WritableFile
}

// NewFileManager creates the temporary file for path
func NewFileManager(fs FileSystem, path string) (*FileManager, error) {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", filepath.Base(path)))

	file, err := fs.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	return &FileManager{
		fs:      fs,
		path:    path,
		tmpPath: tmpPath,
		file:    file,
	}, nil
}

func (fm *FileManager) Write(data []byte) (int, error) {
	return fm.file.Write(data)
}

// Sync flushes the file to stable storage
func (fm *FileManager) Sync() error {
	return fm.file.Sync()
}

// Close closes the file
func (fm *FileManager) Close() error {
	if fm.file == nil {
		return nil
	}
	err := fm.file.Close()
	fm.file = nil
	return err
}

// FinalizeFile closes the file and renames it to the final path
func (fm *FileManager) FinalizeFile() error {
	if err := fm.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := fm.fs.Rename(fm.tmpPath, fm.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Cleanup removes the temporary file if writing is aborted
func (fm *FileManager) Cleanup() error {
	if fm.file != nil {
		fm.Close()
	}
	return fm.fs.Remove(fm.tmpPath)
}

// Writer builds a table file at a path
type Writer struct {
	fileManager *FileManager
	builder     *Builder
}

// NewWriter creates a writer for a new table at path
func NewWriter(fs FileSystem, path string, opts WriterOptions) (*Writer, error) {
	fileManager, err := NewFileManager(fs, path)
	if err != nil {
		return nil, err
	}

	builder, err := NewBuilder(fileManager, opts)
	if err != nil {
		fileManager.Cleanup()
		return nil, err
	}

	return &Writer{fileManager: fileManager, builder: builder}, nil
}

// Add adds a key-value pair. Keys must be added in sorted order.
func (w *Writer) Add(key, value []byte) error {
	return w.builder.Add(key, value)
}

// Finish completes the table, syncs it and moves it to its final name.
// It returns the size of the finished file.
func (w *Writer) Finish() (uint64, error) {
	if err := w.builder.Finish(); err != nil {
		w.fileManager.Cleanup()
		return 0, err
	}
	if err := w.fileManager.Sync(); err != nil {
		w.fileManager.Cleanup()
		return 0, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := w.fileManager.FinalizeFile(); err != nil {
		return 0, err
	}
	return w.builder.FileSize(), nil
}

// Abort cancels the write and removes the temporary file
func (w *Writer) Abort() error {
	w.builder.Abandon()
	return w.fileManager.Cleanup()
}

// NumEntries returns the number of keys added so far
func (w *Writer) NumEntries() uint64 {
	return w.builder.NumEntries()
}
