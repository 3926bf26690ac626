package block

import "bytes"

// Comparator defines a total order over keys. Implementations must be safe
// for concurrent use.
type Comparator interface {
	// Compare returns -1, 0 or +1 when a is less than, equal to or greater than b
	Compare(a, b []byte) int

	// Name identifies the ordering; a table built with one comparator must
	// not be read with another
	Name() string

	// Separator appends to dst a short key k with a <= k < b, used for index
	// entries between data blocks. Returning a itself is always correct.
	Separator(dst, a, b []byte) []byte

	// Successor appends to dst a short key k >= a. Returning a itself is
	// always correct.
	Successor(dst, a []byte) []byte
}

type bytewiseComparator struct{}

// Bytewise orders keys lexicographically by unsigned byte value
var Bytewise Comparator = bytewiseComparator{}

func (bytewiseComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (bytewiseComparator) Name() string {
	return "leveldb.BytewiseComparator"
}

func (bytewiseComparator) Separator(dst, a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	diff := 0
	for diff < n && a[diff] == b[diff] {
		diff++
	}

	if diff < n {
		c := a[diff]
		if c < 0xff && c+1 < b[diff] {
			dst = append(dst, a[:diff+1]...)
			dst[len(dst)-1]++
			return dst
		}
	}
	// One key is a prefix of the other, or they differ by one at diff
	return append(dst, a...)
}

func (bytewiseComparator) Successor(dst, a []byte) []byte {
	for i, c := range a {
		if c != 0xff {
			dst = append(dst, a[:i+1]...)
			dst[len(dst)-1]++
			return dst
		}
	}
	return append(dst, a...)
}
