// Package sstable implements the immutable sorted table file format.
//
// A table is laid out as
//
//	[data block]...[filter block][metaindex block][index block][footer]
//
// where every block except the footer is followed by a five byte trailer
// holding a compression type and a masked CRC-32C of the block bytes and
// the type.
package sstable

import (
	"errors"
	"fmt"

	"github.com/KevoDB/tablestore/pkg/common/status"
)

const (
	// BlockTrailerSize is the size of the type byte plus checksum after each block
	BlockTrailerSize = 5
	// filterMetaPrefix prefixes the policy name in the metaindex key of a filter block
	filterMetaPrefix = "filter."
)

var (
	// ErrChecksumMismatch indicates a block's stored checksum does not match its contents
	ErrChecksumMismatch = fmt.Errorf("%w: block checksum mismatch", status.ErrCorruption)
	// ErrTruncatedBlock indicates a block extends past the bytes the file could supply
	ErrTruncatedBlock = fmt.Errorf("%w: truncated block read", status.ErrCorruption)
	// ErrBadBlockType indicates an unknown compression type in a block trailer
	ErrBadBlockType = fmt.Errorf("%w: bad block type", status.ErrCorruption)
	// ErrFileTooShort indicates a file too small to hold a footer
	ErrFileTooShort = fmt.Errorf("%w: file is too short to be a table", status.ErrCorruption)
	// ErrBuilderClosed indicates use of a table builder after Finish or Abandon
	ErrBuilderClosed = errors.New("table builder already finished")
)
