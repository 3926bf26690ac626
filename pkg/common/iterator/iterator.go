package iterator

// Iterator defines the interface for iterating over key-value pairs held in
// blocks and tables. Key and Value return views that stay valid only until
// the iterator is moved or closed.
//
// An Iterator is not safe for concurrent use; create one per goroutine.
type Iterator interface {
	// SeekToFirst positions the iterator at the first key
	SeekToFirst()

	// SeekToLast positions the iterator at the last key
	SeekToLast()

	// Seek positions the iterator at the first key >= target
	Seek(target []byte) bool

	// Next advances the iterator to the next key
	Next() bool

	// Prev moves the iterator to the previous key
	Prev() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() []byte

	// Valid returns true if the iterator is positioned at a valid entry
	Valid() bool

	// Error returns the first error encountered while iterating, if any
	Error() error

	// Close releases resources held by the iterator. It is safe to call
	// more than once.
	Close() error
}

// errorIterator is positioned nowhere and reports a fixed error
type errorIterator struct {
	err error
}

// NewErrorIterator returns an empty iterator whose Error method returns err
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}

// NewEmptyIterator returns an iterator over nothing
func NewEmptyIterator() Iterator {
	return &errorIterator{}
}

func (e *errorIterator) SeekToFirst()     {}
func (e *errorIterator) SeekToLast()      {}
func (e *errorIterator) Seek([]byte) bool { return false }
func (e *errorIterator) Next() bool       { return false }
func (e *errorIterator) Prev() bool       { return false }
func (e *errorIterator) Key() []byte      { return nil }
func (e *errorIterator) Value() []byte    { return nil }
func (e *errorIterator) Valid() bool      { return false }
func (e *errorIterator) Error() error     { return e.err }
func (e *errorIterator) Close() error     { return nil }
