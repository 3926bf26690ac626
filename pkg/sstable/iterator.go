package sstable

import (
	"bytes"

	"github.com/KevoDB/tablestore/pkg/common/iterator"
	"github.com/KevoDB/tablestore/pkg/sstable/block"
	"github.com/KevoDB/tablestore/pkg/sstable/footer"
)

// Iterator walks a table by pairing an index block iterator with an
// iterator over the data block the index currently points at.
type Iterator struct {
	table *Table
	opts  ReadOptions

	index       *block.Iterator
	data        *block.Iterator
	release     func()
	dataHandle  []byte
	err         error
	initialized bool
}

var _ iterator.Iterator = (*Iterator)(nil)

func newIterator(t *Table, opts ReadOptions) *Iterator {
	return &Iterator{
		table: t,
		opts:  opts,
		index: t.index.NewIterator(t.opts.Comparator),
	}
}

// SeekToFirst positions the iterator at the first key
func (it *Iterator) SeekToFirst() {
	it.initialized = true
	it.index.SeekToFirst()
	it.initDataBlock()
	if it.data != nil {
		it.data.SeekToFirst()
	}
	it.skipEmptyDataBlocksForward()
}

// SeekToLast positions the iterator at the last key
func (it *Iterator) SeekToLast() {
	it.initialized = true
	it.index.SeekToLast()
	it.initDataBlock()
	if it.data != nil {
		it.data.SeekToLast()
	}
	it.skipEmptyDataBlocksBackward()
}

// Seek positions the iterator at the first key >= target
func (it *Iterator) Seek(target []byte) bool {
	it.initialized = true
	it.index.Seek(target)
	it.initDataBlock()
	if it.data != nil {
		it.data.Seek(target)
	}
	it.skipEmptyDataBlocksForward()
	return it.Valid()
}

// Next advances the iterator to the next key. On an iterator that was never
// positioned it behaves like SeekToFirst.
func (it *Iterator) Next() bool {
	if !it.initialized {
		it.SeekToFirst()
		return it.Valid()
	}
	if !it.Valid() {
		return false
	}
	it.data.Next()
	it.skipEmptyDataBlocksForward()
	return it.Valid()
}

// Prev moves the iterator to the previous key
func (it *Iterator) Prev() bool {
	if !it.Valid() {
		return false
	}
	it.data.Prev()
	it.skipEmptyDataBlocksBackward()
	return it.Valid()
}

// Key returns the current key
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.data.Key()
}

// Value returns the current value
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.data.Value()
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.data != nil && it.data.Valid()
}

// Error returns the first error encountered during iteration
func (it *Iterator) Error() error {
	if err := it.index.Error(); err != nil {
		return err
	}
	if it.data != nil {
		if err := it.data.Error(); err != nil {
			return err
		}
	}
	return it.err
}

// Close releases the current data block
func (it *Iterator) Close() error {
	it.setDataIterator(nil, nil)
	it.dataHandle = it.dataHandle[:0]
	return nil
}

func (it *Iterator) saveError(err error) {
	if it.err == nil && err != nil {
		it.err = err
	}
}

func (it *Iterator) setDataIterator(data *block.Iterator, release func()) {
	if it.data != nil {
		it.saveError(it.data.Error())
	}
	if it.release != nil {
		it.release()
	}
	it.data = data
	it.release = release
}

// initDataBlock opens the data block the index iterator points at, reusing
// the current one if the handle is unchanged.
func (it *Iterator) initDataBlock() {
	if !it.index.Valid() {
		it.setDataIterator(nil, nil)
		return
	}

	encoded := it.index.Value()
	if it.data != nil && bytes.Equal(encoded, it.dataHandle) {
		return
	}

	handle, _, err := footer.DecodeBlockHandle(encoded)
	if err != nil {
		it.saveError(err)
		it.setDataIterator(nil, nil)
		return
	}
	blk, release, err := it.table.readBlock(it.opts, handle)
	if err != nil {
		it.saveError(err)
		it.setDataIterator(nil, nil)
		return
	}

	it.setDataIterator(blk.NewIterator(it.table.opts.Comparator), release)
	it.dataHandle = append(it.dataHandle[:0], encoded...)
}

func (it *Iterator) skipEmptyDataBlocksForward() {
	for it.data == nil || !it.data.Valid() {
		if !it.index.Valid() {
			it.setDataIterator(nil, nil)
			return
		}
		it.index.Next()
		it.initDataBlock()
		if it.data != nil {
			it.data.SeekToFirst()
		}
	}
}

func (it *Iterator) skipEmptyDataBlocksBackward() {
	for it.data == nil || !it.data.Valid() {
		if !it.index.Valid() {
			it.setDataIterator(nil, nil)
			return
		}
		it.index.Prev()
		it.initDataBlock()
		if it.data != nil {
			it.data.SeekToLast()
		}
	}
}
