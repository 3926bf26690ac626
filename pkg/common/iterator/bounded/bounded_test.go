package bounded

import (
	"bytes"
	"sort"
	"testing"
)

// sliceIterator is a simple in-memory iterator for testing
type sliceIterator struct {
	keys   []string
	values map[string]string
	index  int
	closed bool
}

func newSliceIterator(data map[string]string) *sliceIterator {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &sliceIterator{keys: keys, values: data, index: -1}
}

func (s *sliceIterator) SeekToFirst() {
	s.index = -1
	if len(s.keys) > 0 {
		s.index = 0
	}
}

func (s *sliceIterator) SeekToLast() {
	s.index = len(s.keys) - 1
}

func (s *sliceIterator) Seek(target []byte) bool {
	s.index = sort.SearchStrings(s.keys, string(target))
	if s.index >= len(s.keys) {
		s.index = -1
	}
	return s.Valid()
}

func (s *sliceIterator) Next() bool {
	if !s.Valid() {
		return false
	}
	s.index++
	if s.index >= len(s.keys) {
		s.index = -1
	}
	return s.Valid()
}

func (s *sliceIterator) Prev() bool {
	if !s.Valid() {
		return false
	}
	s.index--
	return s.Valid()
}

func (s *sliceIterator) Key() []byte {
	if !s.Valid() {
		return nil
	}
	return []byte(s.keys[s.index])
}

func (s *sliceIterator) Value() []byte {
	if !s.Valid() {
		return nil
	}
	return []byte(s.values[s.keys[s.index]])
}

func (s *sliceIterator) Valid() bool {
	return s.index >= 0 && s.index < len(s.keys)
}

func (s *sliceIterator) Error() error {
	return nil
}

func (s *sliceIterator) Close() error {
	s.closed = true
	return nil
}

func testData() map[string]string {
	return map[string]string{
		"a": "1", "b": "2", "c": "3", "d": "4", "e": "5",
	}
}

func collectForward(b *BoundedIterator) []string {
	var keys []string
	for b.SeekToFirst(); b.Valid(); b.Next() {
		keys = append(keys, string(b.Key()))
	}
	return keys
}

func collectBackward(b *BoundedIterator) []string {
	var keys []string
	for b.SeekToLast(); b.Valid(); b.Prev() {
		keys = append(keys, string(b.Key()))
	}
	return keys
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBoundedIterator_Range(t *testing.T) {
	b := NewBoundedIterator(newSliceIterator(testData()), []byte("b"), []byte("d"))

	if got := collectForward(b); !equal(got, []string{"b", "c"}) {
		t.Errorf("forward: expected [b c], got %v", got)
	}
	if got := collectBackward(b); !equal(got, []string{"c", "b"}) {
		t.Errorf("backward: expected [c b], got %v", got)
	}
}

func TestBoundedIterator_OpenBounds(t *testing.T) {
	b := NewBoundedIterator(newSliceIterator(testData()), nil, nil)
	if got := collectForward(b); len(got) != 5 {
		t.Errorf("expected 5 keys, got %v", got)
	}

	b = NewBoundedIterator(newSliceIterator(testData()), nil, []byte("zz"))
	if got := collectBackward(b); !equal(got, []string{"e", "d", "c", "b", "a"}) {
		t.Errorf("end past all keys: got %v", got)
	}

	b = NewBoundedIterator(newSliceIterator(testData()), []byte("c"), nil)
	if got := collectBackward(b); !equal(got, []string{"e", "d", "c"}) {
		t.Errorf("start only: got %v", got)
	}
}

func TestBoundedIterator_Seek(t *testing.T) {
	b := NewBoundedIterator(newSliceIterator(testData()), []byte("b"), []byte("d"))

	if !b.Seek([]byte("a")) || string(b.Key()) != "b" {
		t.Errorf("seek below start should clamp to start, got %q", b.Key())
	}
	if b.Seek([]byte("d")) {
		t.Error("seek at end bound should fail")
	}
	if !b.Seek([]byte("bb")) || string(b.Key()) != "c" {
		t.Errorf("expected c, got %q", b.Key())
	}
	if b.Value() == nil || !bytes.Equal(b.Value(), []byte("3")) {
		t.Errorf("expected value 3, got %q", b.Value())
	}
}

func TestBoundedIterator_EmptyRange(t *testing.T) {
	b := NewBoundedIterator(newSliceIterator(testData()), []byte("c1"), []byte("c2"))
	if got := collectForward(b); len(got) != 0 {
		t.Errorf("expected no keys, got %v", got)
	}
	if got := collectBackward(b); len(got) != 0 {
		t.Errorf("expected no keys backward, got %v", got)
	}
}

func TestPrefixIterator(t *testing.T) {
	data := map[string]string{
		"app": "1", "apple": "2", "apply": "3", "b": "4", "ap": "5",
	}
	p := NewPrefixIterator(newSliceIterator(data), []byte("app"))
	if got := collectForward(p); !equal(got, []string{"app", "apple", "apply"}) {
		t.Errorf("expected app* keys, got %v", got)
	}

	if PrefixSuccessor([]byte{0xff, 0xff}) != nil {
		t.Error("all-0xff prefix has no successor")
	}
	if got := PrefixSuccessor([]byte{'a', 0xff}); !bytes.Equal(got, []byte("b")) {
		t.Errorf("expected b, got %q", got)
	}
}

func TestBoundedIterator_ClosePassesThrough(t *testing.T) {
	inner := newSliceIterator(testData())
	b := NewBoundedIterator(inner, nil, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !inner.closed {
		t.Error("close should reach the wrapped iterator")
	}
}
