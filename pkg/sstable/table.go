package sstable

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/KevoDB/tablestore/pkg/cache"
	"github.com/KevoDB/tablestore/pkg/common/log"
	"github.com/KevoDB/tablestore/pkg/common/status"
	"github.com/KevoDB/tablestore/pkg/sstable/block"
	"github.com/KevoDB/tablestore/pkg/sstable/compression"
	"github.com/KevoDB/tablestore/pkg/sstable/footer"
	"github.com/KevoDB/tablestore/pkg/stats"
)

// BlockCacheKey identifies a block in a block cache shared by many tables
type BlockCacheKey struct {
	CacheID uint64
	Offset  uint64
}

// BlockCache holds decoded blocks, charged by their size in bytes
type BlockCache = cache.LRU[BlockCacheKey, *block.Block]

// NewBlockCache creates a block cache holding up to capacity bytes
func NewBlockCache(capacity int64) *BlockCache {
	return cache.New[BlockCacheKey, *block.Block](capacity)
}

// ReaderOptions configures how tables are opened and read
type ReaderOptions struct {
	// Comparator must match the one the table was built with
	Comparator block.Comparator
	// Codecs decodes compressed blocks
	Codecs *compression.Registry
	// FilterPolicy enables the table's filter block if its name matches
	FilterPolicy FilterPolicy
	// BlockCache, if set, caches uncompressed or decompressed blocks
	BlockCache *BlockCache
	Logger     log.Logger
	// Stats, if set, counts the blocks and bytes read from the file
	Stats stats.Collector
}

// Table is an open, immutable table. It is safe for concurrent use. The
// caller owns the file and must keep it open for as long as the table or any
// iterator over it is in use.
type Table struct {
	file    RandomAccessFile
	size    uint64
	opts    ReaderOptions
	footer  footer.Footer
	index   *block.Block
	filter  *filterBlockReader
	cacheID uint64
	logger  log.Logger
}

// Open reads the footer and index block of a table of the given size
func Open(file RandomAccessFile, size uint64, opts ReaderOptions) (*Table, error) {
	if opts.Comparator == nil {
		opts.Comparator = block.Bytewise
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	if size < footer.EncodedLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooShort, size)
	}

	buf := make([]byte, footer.EncodedLength)
	n, err := file.ReadAt(buf, int64(size-footer.EncodedLength))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to read footer: %v", status.ErrIO, err)
	}
	ft, err := footer.Decode(buf[:n])
	if err != nil {
		return nil, err
	}

	t := &Table{
		file:   file,
		size:   size,
		opts:   opts,
		footer: *ft,
		logger: logger,
	}

	if err := t.checkHandle(ft.IndexHandle); err != nil {
		return nil, fmt.Errorf("index block: %w", err)
	}
	contents, err := ReadBlock(file, opts.Codecs, ReadOptions{}, ft.IndexHandle)
	if err != nil {
		return nil, fmt.Errorf("index block: %w", err)
	}
	index, err := block.New(contents)
	if err != nil {
		return nil, fmt.Errorf("index block: %w", err)
	}
	t.index = index

	if opts.BlockCache != nil {
		t.cacheID = opts.BlockCache.NewID()
	}

	t.readMeta()
	return t, nil
}

// readMeta loads the filter block. A table whose filter cannot be read is
// still usable, so failures are logged rather than returned.
func (t *Table) readMeta() {
	if t.opts.FilterPolicy == nil {
		return
	}

	handle := t.footer.MetaindexHandle
	if err := t.checkHandle(handle); err != nil {
		t.logger.Warn("skipping metaindex: %v", err)
		return
	}
	contents, err := ReadBlock(t.file, t.opts.Codecs, ReadOptions{}, handle)
	if err != nil {
		t.logger.Warn("skipping metaindex: %v", err)
		return
	}
	meta, err := block.New(contents)
	if err != nil {
		t.logger.Warn("skipping metaindex: %v", err)
		return
	}

	key := []byte(filterMetaPrefix + t.opts.FilterPolicy.Name())
	iter := meta.NewIterator(block.Bytewise)
	if !iter.Seek(key) || !bytes.Equal(iter.Key(), key) {
		if err := iter.Error(); err != nil {
			t.logger.Warn("skipping metaindex: %v", err)
		}
		return
	}

	filterHandle, _, err := footer.DecodeBlockHandle(iter.Value())
	if err == nil {
		err = t.checkHandle(filterHandle)
	}
	if err != nil {
		t.logger.Warn("skipping filter block: %v", err)
		return
	}
	filterContents, err := ReadBlock(t.file, t.opts.Codecs, ReadOptions{}, filterHandle)
	if err != nil {
		t.logger.Warn("skipping filter block: %v", err)
		return
	}
	t.filter = newFilterBlockReader(t.opts.FilterPolicy, filterContents.Data)
}

// checkHandle verifies a block and its trailer lie inside the file
func (t *Table) checkHandle(h footer.BlockHandle) error {
	if h.Offset > t.size || h.Size > t.size-h.Offset || BlockTrailerSize > t.size-h.Offset-h.Size {
		return fmt.Errorf("%w: block %v extends past end of %d byte file", ErrTruncatedBlock, h, t.size)
	}
	return nil
}

func noRelease() {}

// readBlock returns the data block at handle, consulting the block cache.
// The returned function must be called once the block is no longer used.
func (t *Table) readBlock(opts ReadOptions, handle footer.BlockHandle) (*block.Block, func(), error) {
	if err := t.checkHandle(handle); err != nil {
		return nil, nil, err
	}

	bc := t.opts.BlockCache
	key := BlockCacheKey{CacheID: t.cacheID, Offset: handle.Offset}
	if bc != nil {
		if h := bc.Lookup(key); h != nil {
			return h.Value(), h.Release, nil
		}
	}

	start := time.Now()
	contents, err := ReadBlock(t.file, t.opts.Codecs, opts, handle)
	if err != nil {
		return nil, nil, err
	}
	if st := t.opts.Stats; st != nil {
		st.TrackOperationWithLatency(stats.OpBlockRead, uint64(time.Since(start).Nanoseconds()))
		st.TrackBytes(false, handle.Size+BlockTrailerSize)
	}
	blk, err := block.New(contents)
	if err != nil {
		return nil, nil, err
	}

	if bc != nil && contents.Cachable && opts.FillCache {
		h := bc.Insert(key, blk, int64(blk.Size()), nil)
		return blk, h.Release, nil
	}
	return blk, noRelease, nil
}

// NewIterator returns an iterator over the table's entries. Close releases
// any cached block it holds.
func (t *Table) NewIterator(opts ReadOptions) *Iterator {
	return newIterator(t, opts)
}

// Get calls visitor with the first entry whose key is >= key, unless the
// filter shows key is absent. The key and value are only valid during the call.
func (t *Table) Get(opts ReadOptions, key []byte, visitor func(k, v []byte)) error {
	iiter := t.index.NewIterator(t.opts.Comparator)
	if !iiter.Seek(key) {
		return iiter.Error()
	}

	handle, _, err := footer.DecodeBlockHandle(iiter.Value())
	if err != nil {
		return err
	}
	if t.filter != nil && !t.filter.KeyMayMatch(handle.Offset, key) {
		return nil
	}

	blk, release, err := t.readBlock(opts, handle)
	if err != nil {
		return err
	}
	defer release()

	it := blk.NewIterator(t.opts.Comparator)
	if it.Seek(key) {
		visitor(it.Key(), it.Value())
	}
	return it.Error()
}

// ApproximateOffsetOf returns the approximate file offset at which the data
// for key begins. Keys past the last data block map to the metaindex offset,
// which is close to the file size.
func (t *Table) ApproximateOffsetOf(key []byte) uint64 {
	iiter := t.index.NewIterator(t.opts.Comparator)
	if iiter.Seek(key) {
		if handle, _, err := footer.DecodeBlockHandle(iiter.Value()); err == nil {
			return handle.Offset
		}
	}
	return t.footer.MetaindexHandle.Offset
}

// Footer returns the decoded footer
func (t *Table) Footer() footer.Footer {
	return t.footer
}

// Size returns the file size the table was opened with
func (t *Table) Size() uint64 {
	return t.size
}

// HasFilter reports whether a filter block was loaded
func (t *Table) HasFilter() bool {
	return t.filter != nil
}

// IndexEntries returns the number of data blocks listed in the index
func (t *Table) IndexEntries() int {
	n := 0
	iter := t.index.NewIterator(t.opts.Comparator)
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		n++
	}
	return n
}
