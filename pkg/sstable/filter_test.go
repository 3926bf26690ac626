package sstable

import (
	"fmt"
	"testing"
)

func TestBloomFilterPolicy(t *testing.T) {
	policy := NewBloomFilterPolicy(10)

	if policy.MayContain(nil, []byte("hello")) {
		t.Error("empty filter should match nothing")
	}

	var keys [][]byte
	for i := 0; i < 1000; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key%d", i)))
	}
	filter := policy.AppendFilter(nil, keys)

	for _, k := range keys {
		if !policy.MayContain(filter, k) {
			t.Fatalf("false negative for %q", k)
		}
	}

	falsePositives := 0
	for i := 0; i < 10000; i++ {
		if policy.MayContain(filter, []byte(fmt.Sprintf("missing%d", i))) {
			falsePositives++
		}
	}
	// Ten bits per key should give about one percent
	if rate := float64(falsePositives) / 10000; rate > 0.03 {
		t.Errorf("false positive rate %.4f is too high", rate)
	}
}

func TestBloomFilterSmallSets(t *testing.T) {
	policy := NewBloomFilterPolicy(10)

	filter := policy.AppendFilter([]byte("prefix"), [][]byte{[]byte("a")})
	filter = filter[len("prefix"):]
	if len(filter) != 8+1 {
		t.Errorf("expected 64 bit minimum filter plus k byte, got %d bytes", len(filter))
	}
	if !policy.MayContain(filter, []byte("a")) {
		t.Error("false negative for single key")
	}

	// An unknown k is treated as a match
	reserved := append(make([]byte, 8), 31)
	if !policy.MayContain(reserved, []byte("anything")) {
		t.Error("reserved encoding should match")
	}
}

func TestFilterBlock(t *testing.T) {
	policy := NewBloomFilterPolicy(10)
	builder := newFilterBlockBuilder(policy)

	builder.StartBlock(100)
	builder.AddKey([]byte("foo"))
	builder.AddKey([]byte("bar"))
	builder.AddKey([]byte("box"))
	builder.StartBlock(200)
	builder.AddKey([]byte("box"))
	builder.StartBlock(300)
	builder.AddKey([]byte("hello"))

	// Second filter range starts at 3100 and has no keys
	builder.StartBlock(3100)
	builder.StartBlock(9000)
	builder.AddKey([]byte("late"))
	contents := builder.Finish()

	reader := newFilterBlockReader(policy, contents)

	for _, k := range []string{"foo", "bar", "box", "hello"} {
		if !reader.KeyMayMatch(100, []byte(k)) {
			t.Errorf("expected %q to match first filter", k)
		}
	}
	if reader.KeyMayMatch(100, []byte("missing")) && reader.KeyMayMatch(100, []byte("other")) {
		t.Error("filter matched two absent keys")
	}

	if reader.KeyMayMatch(3100, []byte("foo")) {
		t.Error("empty filter range should match nothing")
	}
	if !reader.KeyMayMatch(9000, []byte("late")) {
		t.Error("expected late key in its own range")
	}
	if reader.KeyMayMatch(9000, []byte("foo")) && reader.KeyMayMatch(9000, []byte("bar")) {
		t.Error("last filter matched two absent keys")
	}

	// Offsets beyond the recorded filters fall back to a match
	if !reader.KeyMayMatch(1<<30, []byte("anything")) {
		t.Error("out of range offsets should match")
	}
}

func TestEmptyFilterBlock(t *testing.T) {
	policy := NewBloomFilterPolicy(10)
	contents := newFilterBlockBuilder(policy).Finish()
	if len(contents) != 5 {
		t.Fatalf("expected 5 byte empty filter block, got %d", len(contents))
	}

	reader := newFilterBlockReader(policy, contents)
	if !reader.KeyMayMatch(0, []byte("foo")) || !reader.KeyMayMatch(100000, []byte("foo")) {
		t.Error("empty filter block should match everything")
	}

	malformed := newFilterBlockReader(policy, []byte{1, 2})
	if !malformed.KeyMayMatch(0, []byte("foo")) {
		t.Error("malformed filter block should match everything")
	}
}
