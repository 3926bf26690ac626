// Package status defines the error categories shared by the table format,
// the block reader and the table cache.
//
// Every specific error in this module wraps exactly one of these categories,
// so callers can branch with errors.Is without knowing which layer failed.
package status

import "errors"

var (
	// ErrMalformed indicates an invalid or truncated encoding (varints,
	// slice lengths that exceed their buffer).
	ErrMalformed = errors.New("malformed encoding")

	// ErrCorruption indicates stored data failed validation (checksum,
	// magic number, block structure).
	ErrCorruption = errors.New("corruption")

	// ErrNotFound indicates a file is missing under every naming convention.
	ErrNotFound = errors.New("not found")

	// ErrIO indicates an open or read failure that is not a missing file.
	ErrIO = errors.New("io error")
)

// IsCorruption reports whether err is a corruption or malformed-encoding error.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption) || errors.Is(err, ErrMalformed)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIO reports whether err is an I/O or resource error
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}
