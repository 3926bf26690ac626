// Package tablecache keeps a bounded set of tables open.
//
// Tables are keyed by file number. A miss opens the file under its current
// name, falling back to the legacy name, and reads the table's footer and
// index. Callers pin a table through a Handle or an Iterator; an entry that
// is evicted while pinned stays open until its last holder releases it.
package tablecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevoDB/tablestore/pkg/cache"
	"github.com/KevoDB/tablestore/pkg/common/log"
	"github.com/KevoDB/tablestore/pkg/common/status"
	"github.com/KevoDB/tablestore/pkg/sstable"
	"github.com/KevoDB/tablestore/pkg/stats"
)

// DefaultEntries is the table budget used when Options.Entries is unset
const DefaultEntries = 990

// Options configures a TableCache
type Options struct {
	// Entries bounds how many tables are kept open
	Entries int
	// FileSystem opens table files. Defaults to the OS file system.
	FileSystem sstable.FileSystem
	// Namer maps file numbers to file names. Defaults to DefaultNamer.
	Namer FileNamer
	// Reader is passed to sstable.Open for every table
	Reader  sstable.ReaderOptions
	Logger  log.Logger
	Metrics Metrics
	Stats   stats.Collector
}

type tableAndFile struct {
	file  sstable.RandomAccessFile
	table *sstable.Table
}

// TableCache caches open tables by file number. It is safe for concurrent use.
type TableCache struct {
	dir     string
	fs      sstable.FileSystem
	namer   FileNamer
	reader  sstable.ReaderOptions
	cache   *cache.LRU[uint64, *tableAndFile]
	logger  log.Logger
	metrics Metrics
	stats   stats.Collector

	live atomic.Int64
}

// New creates a table cache for the tables stored in dir
func New(dir string, opts Options) *TableCache {
	if opts.Entries <= 0 {
		opts.Entries = DefaultEntries
	}
	if opts.FileSystem == nil {
		opts.FileSystem = sstable.OSFileSystem{}
	}
	if opts.Namer == nil {
		opts.Namer = DefaultNamer{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewNoopMetrics()
	}
	if opts.Stats == nil {
		opts.Stats = stats.NewAtomicCollector()
	}

	logger := opts.Logger.WithField("component", "tablecache")
	if opts.Reader.Logger == nil {
		opts.Reader.Logger = logger
	}
	if opts.Reader.Stats == nil {
		opts.Reader.Stats = opts.Stats
	}

	return &TableCache{
		dir:     dir,
		fs:      opts.FileSystem,
		namer:   opts.Namer,
		reader:  opts.Reader,
		cache:   cache.New[uint64, *tableAndFile](int64(opts.Entries)),
		logger:  logger,
		metrics: opts.Metrics,
		stats:   opts.Stats,
	}
}

// Handle pins one open table
type Handle struct {
	h *cache.Handle[uint64, *tableAndFile]
}

// Table returns the pinned table. It must not be used after Release.
func (h *Handle) Table() *sstable.Table {
	return h.h.Value().table
}

// FileNumber returns the file number the handle was obtained for
func (h *Handle) FileNumber() uint64 {
	return h.h.Key()
}

// Release unpins the table. Calls after the first are ignored.
func (h *Handle) Release() {
	h.h.Release()
}

// Find returns a handle to the table for fileNum, opening it on a miss.
// Failures are returned to the caller and never cached.
func (c *TableCache) Find(fileNum, fileSize uint64) (*Handle, error) {
	ctx := context.Background()
	c.stats.TrackOperation(stats.OpFind)

	if h := c.cache.Lookup(fileNum); h != nil {
		c.stats.TrackCacheLookup(true)
		c.metrics.RecordLookup(ctx, true)
		return &Handle{h: h}, nil
	}
	c.stats.TrackCacheLookup(false)
	c.metrics.RecordLookup(ctx, false)

	start := time.Now()
	tf, err := c.open(fileNum, fileSize)
	elapsed := time.Since(start)
	c.metrics.RecordOpen(ctx, elapsed, fileNum, err)
	if err != nil {
		c.stats.TrackError(errorType(err))
		c.logger.Warn("failed to open table %d: %v", fileNum, err)
		return nil, err
	}
	c.stats.TrackOperationWithLatency(stats.OpOpen, uint64(elapsed.Nanoseconds()))
	c.stats.TrackOpenTables(c.live.Load())

	// A concurrent miss on the same file may already have inserted; this
	// entry supersedes it and the loser is closed once unreferenced.
	h := c.cache.Insert(fileNum, tf, 1, c.closeTable)
	return &Handle{h: h}, nil
}

func (c *TableCache) open(fileNum, fileSize uint64) (*tableAndFile, error) {
	name := filepath.Join(c.dir, c.namer.TableFileName(fileNum))
	file, err := c.fs.Open(name)
	if err != nil {
		legacy := filepath.Join(c.dir, c.namer.LegacyTableFileName(fileNum))
		lfile, lerr := c.fs.Open(legacy)
		switch {
		case lerr == nil:
			file, err = lfile, nil
		case errors.Is(err, fs.ErrNotExist) && errors.Is(lerr, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: table %d: %s", status.ErrNotFound, fileNum, name)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: opening table %d: %v", status.ErrIO, fileNum, err)
		default:
			return nil, fmt.Errorf("%w: opening table %d: %v", status.ErrIO, fileNum, lerr)
		}
	}

	table, err := sstable.Open(file, fileSize, c.reader)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("table %d: %w", fileNum, err)
	}

	c.live.Add(1)
	c.logger.Debug("opened table %d (%d bytes)", fileNum, fileSize)
	return &tableAndFile{file: file, table: table}, nil
}

// closeTable runs once an entry has left the cache and every handle to it
// has been released.
func (c *TableCache) closeTable(fileNum uint64, tf *tableAndFile) {
	if err := tf.file.Close(); err != nil {
		c.logger.Warn("failed to close table %d: %v", fileNum, err)
	}
	n := c.live.Add(-1)
	c.stats.TrackOpenTables(n)
	c.logger.Debug("closed table %d", fileNum)
}

// Iterator iterates over one table and keeps it pinned until Close. Callers
// should Close every iterator; one that is dropped without Close releases its
// table only after the garbage collector finds it unreachable.
type Iterator struct {
	*sstable.Iterator
	handle  *Handle
	once    sync.Once
	cleanup runtime.Cleanup
}

// iteratorPins is what an unreachable Iterator still holds
type iteratorPins struct {
	iter   *sstable.Iterator
	handle *Handle
}

func releasePins(p iteratorPins) {
	p.iter.Close()
	p.handle.Release()
}

// Table returns the table being iterated
func (it *Iterator) Table() *sstable.Table {
	return it.handle.Table()
}

// Close closes the table iterator and releases the cache reference
func (it *Iterator) Close() error {
	var err error
	it.once.Do(func() {
		it.cleanup.Stop()
		err = it.Iterator.Close()
		it.handle.Release()
	})
	return err
}

// NewIterator returns an iterator over the table for fileNum
func (c *TableCache) NewIterator(ro sstable.ReadOptions, fileNum, fileSize uint64) (*Iterator, error) {
	h, err := c.Find(fileNum, fileSize)
	if err != nil {
		return nil, err
	}
	c.stats.TrackOperation(stats.OpIterator)
	c.metrics.RecordIterator(context.Background(), fileNum)

	it := &Iterator{Iterator: h.Table().NewIterator(ro), handle: h}
	it.cleanup = runtime.AddCleanup(it, releasePins, iteratorPins{iter: it.Iterator, handle: h})
	return it, nil
}

// Get looks key up in the table for fileNum. visitor is called with the first
// entry whose key is at or after key, unless the table's filter rules the key
// out. The table is pinned only for the duration of the call.
func (c *TableCache) Get(ro sstable.ReadOptions, fileNum, fileSize uint64, key []byte, visitor func(k, v []byte)) error {
	start := time.Now()

	h, err := c.Find(fileNum, fileSize)
	if err != nil {
		c.metrics.RecordGet(context.Background(), time.Since(start), false, err)
		return err
	}
	defer h.Release()

	found := false
	err = h.Table().Get(ro, key, func(k, v []byte) {
		found = true
		visitor(k, v)
	})

	elapsed := time.Since(start)
	c.metrics.RecordGet(context.Background(), elapsed, found, err)
	if err != nil {
		c.stats.TrackError(errorType(err))
		return err
	}
	c.stats.TrackOperationWithLatency(stats.OpGet, uint64(elapsed.Nanoseconds()))
	return nil
}

// Evict drops the table for fileNum from the cache. Holders of a handle or
// iterator keep using it; the file is closed when the last one is released.
func (c *TableCache) Evict(fileNum uint64) {
	c.cache.Erase(fileNum)
	c.stats.TrackOperation(stats.OpEvict)
	c.metrics.RecordEviction(context.Background(), fileNum)
	c.logger.Debug("evicted table %d", fileNum)
}

// Close drops every entry. Tables still pinned are closed on release.
func (c *TableCache) Close() error {
	c.cache.Clear()
	return c.metrics.Close()
}

// Stats describes the cache's current state
type Stats struct {
	// Entries is the number of tables available to Find without reopening
	Entries int
	// LiveTables counts open tables, including evicted ones still pinned
	LiveTables int64
	Cache      cache.Stats
}

// Stats returns a snapshot of the cache's state
func (c *TableCache) Stats() Stats {
	return Stats{
		Entries:    c.cache.Len(),
		LiveTables: c.live.Load(),
		Cache:      c.cache.Stats(),
	}
}

// Collector returns the operation statistics collector
func (c *TableCache) Collector() stats.Collector {
	return c.stats
}

func errorType(err error) string {
	switch {
	case status.IsNotFound(err):
		return "not_found"
	case status.IsCorruption(err):
		return "corruption"
	case status.IsIO(err):
		return "io"
	default:
		return "other"
	}
}
