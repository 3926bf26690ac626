package sstable

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// FilterPolicy builds and queries the per-block filters stored in a table's
// filter block. Implementations must be safe for concurrent use.
type FilterPolicy interface {
	// Name is recorded in the metaindex; a reader only uses a filter whose
	// name matches its own policy
	Name() string
	// AppendFilter appends a filter summarizing keys to dst
	AppendFilter(dst []byte, keys [][]byte) []byte
	// MayContain returns false only if key was definitely not summarized by filter
	MayContain(filter, key []byte) bool
}

type bloomFilterPolicy struct {
	bitsPerKey int
	hashCount  int
}

// NewBloomFilterPolicy returns a bloom filter policy using about bitsPerKey
// bits per key. Ten bits per key gives roughly a one percent false positive
// rate.
func NewBloomFilterPolicy(bitsPerKey int) FilterPolicy {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	// k = ln(2) * m/n minimizes the false positive rate
	k := int(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return &bloomFilterPolicy{bitsPerKey: bitsPerKey, hashCount: k}
}

func (p *bloomFilterPolicy) Name() string {
	return "tablestore.BloomFilter.xxhash"
}

func (p *bloomFilterPolicy) AppendFilter(dst []byte, keys [][]byte) []byte {
	bits := len(keys) * p.bitsPerKey
	if bits < 64 {
		bits = 64
	}
	nBytes := (bits + 7) / 8
	bits = nBytes * 8

	start := len(dst)
	dst = append(dst, make([]byte, nBytes)...)
	dst = append(dst, byte(p.hashCount))
	filter := dst[start : start+nBytes]

	for _, key := range keys {
		h, delta := bloomHash(key)
		for j := 0; j < p.hashCount; j++ {
			pos := h % uint32(bits)
			filter[pos/8] |= 1 << (pos % 8)
			h += delta
		}
	}
	return dst
}

func (p *bloomFilterPolicy) MayContain(filter, key []byte) bool {
	if len(filter) < 2 {
		return false
	}
	bits := uint32(len(filter)-1) * 8

	k := int(filter[len(filter)-1])
	if k > 30 {
		// Reserved for future encodings; treat as a match
		return true
	}

	h, delta := bloomHash(key)
	for j := 0; j < k; j++ {
		pos := h % bits
		if filter[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}

// bloomHash splits one 64-bit hash into the two halves used for double hashing
func bloomHash(key []byte) (uint32, uint32) {
	h := xxhash.Sum64(key)
	return uint32(h), uint32(h>>32) | 1
}

// filterBaseLg sets the data-offset range covered by each filter to 2KiB
const filterBaseLg = 11

// filterBlockBuilder collects keys per 2KiB range of data-block offsets and
// emits one filter per range:
//
//	[filter 0]...[filter N-1][offset of filter 0..N-1 as u32][array offset u32][base lg]
type filterBlockBuilder struct {
	policy        FilterPolicy
	keys          []byte
	starts        []int
	result        []byte
	filterOffsets []uint32
	scratch       [][]byte
}

func newFilterBlockBuilder(policy FilterPolicy) *filterBlockBuilder {
	return &filterBlockBuilder{policy: policy}
}

// StartBlock is called with the offset of each data block before its keys are added
func (b *filterBlockBuilder) StartBlock(blockOffset uint64) {
	index := blockOffset >> filterBaseLg
	for index > uint64(len(b.filterOffsets)) {
		b.generateFilter()
	}
}

func (b *filterBlockBuilder) AddKey(key []byte) {
	b.starts = append(b.starts, len(b.keys))
	b.keys = append(b.keys, key...)
}

func (b *filterBlockBuilder) Finish() []byte {
	if len(b.starts) > 0 {
		b.generateFilter()
	}

	arrayOffset := uint32(len(b.result))
	for _, off := range b.filterOffsets {
		b.result = binary.LittleEndian.AppendUint32(b.result, off)
	}
	b.result = binary.LittleEndian.AppendUint32(b.result, arrayOffset)
	return append(b.result, filterBaseLg)
}

func (b *filterBlockBuilder) generateFilter() {
	b.filterOffsets = append(b.filterOffsets, uint32(len(b.result)))
	if len(b.starts) == 0 {
		return
	}

	b.scratch = b.scratch[:0]
	for i, start := range b.starts {
		end := len(b.keys)
		if i+1 < len(b.starts) {
			end = b.starts[i+1]
		}
		b.scratch = append(b.scratch, b.keys[start:end])
	}
	b.result = b.policy.AppendFilter(b.result, b.scratch)

	b.keys = b.keys[:0]
	b.starts = b.starts[:0]
}

// filterBlockReader answers membership queries against a filter block.
// A malformed block matches every key.
type filterBlockReader struct {
	policy FilterPolicy
	data   []byte
	offset uint32 // start of the offset array
	num    uint32
	baseLg uint
}

func newFilterBlockReader(policy FilterPolicy, contents []byte) *filterBlockReader {
	r := &filterBlockReader{policy: policy}
	n := len(contents)
	if n < 5 {
		return r
	}
	r.baseLg = uint(contents[n-1])
	lastWord := binary.LittleEndian.Uint32(contents[n-5:])
	if uint64(lastWord) > uint64(n-5) {
		return r
	}
	r.data = contents
	r.offset = lastWord
	r.num = (uint32(n) - 5 - lastWord) / 4
	return r
}

// KeyMayMatch reports whether key may be in the data block at blockOffset
func (r *filterBlockReader) KeyMayMatch(blockOffset uint64, key []byte) bool {
	index := blockOffset >> r.baseLg
	if index >= uint64(r.num) {
		return true
	}

	pos := r.offset + uint32(index)*4
	start := binary.LittleEndian.Uint32(r.data[pos:])
	limit := binary.LittleEndian.Uint32(r.data[pos+4:])
	if start <= limit && limit <= r.offset {
		return r.policy.MayContain(r.data[start:limit], key)
	}
	if start == limit {
		// Empty filters match no keys
		return false
	}
	return true
}
