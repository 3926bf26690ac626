// Package compression maps the block trailer's compression tag to codecs.
package compression

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KevoDB/tablestore/pkg/common/status"
)

// Type is the one-byte compression tag stored in every block trailer
type Type byte

const (
	None   Type = 0
	Snappy Type = 1
	Zlib   Type = 2
	Zstd   Type = 3
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zlib:
		return "zlib"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// ParseType converts a configuration name into a Type
func ParseType(name string) (Type, error) {
	for _, t := range []Type{None, Snappy, Zlib, Zstd} {
		if t.String() == name {
			return t, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

var (
	// ErrUnknownCodec is returned when no codec is registered for a type
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrCodecClosed is returned by a codec used after Close
	ErrCodecClosed = errors.New("compression codec closed")

	// ErrInvalidCompressedData is returned when compressed data cannot be decompressed
	ErrInvalidCompressedData = fmt.Errorf("%w: invalid compressed data", status.ErrCorruption)
)

// Codec compresses and decompresses whole blocks. Implementations must be
// safe for concurrent use.
type Codec interface {
	Type() Type
	// Encode appends the compressed form of src to dst
	Encode(dst, src []byte) ([]byte, error)
	// Decode appends the decompressed form of src to dst
	Decode(dst, src []byte) ([]byte, error)
}

// Registry holds the codecs a reader or writer may use
type Registry struct {
	mu     sync.RWMutex
	codecs map[Type]Codec
}

// NewRegistry creates a registry holding the given codecs
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[Type]Codec)}
	for _, c := range codecs {
		r.codecs[c.Type()] = c
	}
	return r
}

// DefaultRegistry creates a registry with snappy, zlib and zstd
func DefaultRegistry() (*Registry, error) {
	z, err := NewZstdCodec()
	if err != nil {
		return nil, err
	}
	return NewRegistry(SnappyCodec{}, ZlibCodec{}, z), nil
}

// Register adds or replaces the codec for c.Type()
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.Type()] = c
}

// Lookup returns the codec for t. None never has a codec.
func (r *Registry) Lookup(t Type) (Codec, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, t)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, t)
	}
	return c, nil
}

// Close releases codecs that hold resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for t, c := range r.codecs {
		if closer, ok := c.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %v: %w", t, err))
			}
		}
	}
	r.codecs = make(map[Type]Codec)
	return errors.Join(errs...)
}
