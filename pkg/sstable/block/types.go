package block

import (
	"errors"
	"fmt"

	"github.com/KevoDB/tablestore/pkg/common/status"
)

const (
	// DefaultBlockSize is the target uncompressed size for data blocks
	DefaultBlockSize = 4 * 1024
	// DefaultRestartInterval defines how often we store a full key
	DefaultRestartInterval = 16
	// restartEntrySize is the width of one restart offset and of the count
	restartEntrySize = 4
)

var (
	// ErrCorruptBlock indicates a block whose structure does not decode
	ErrCorruptBlock = fmt.Errorf("%w: bad block contents", status.ErrCorruption)
	// ErrKeyOrder indicates keys were added to a builder out of order
	ErrKeyOrder = errors.New("keys must be added in strictly increasing order")
)

// Contents is the payload of one block after checksum verification and
// decompression.
type Contents struct {
	// Data holds the block bytes, restart array included
	Data []byte
	// Cachable is true if Data may be placed in a shared block cache
	Cachable bool
	// HeapAllocated is true if Data was allocated for this block alone and
	// does not alias a file mapping or a caller-owned buffer
	HeapAllocated bool
}
