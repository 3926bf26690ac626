package tablecache

import (
	"fmt"
	"strconv"
	"strings"
)

// FileNamer maps a file number to the names a table may be stored under
type FileNamer interface {
	// TableFileName is the name new tables are written under
	TableFileName(fileNum uint64) string
	// LegacyTableFileName is tried when TableFileName does not exist
	LegacyTableFileName(fileNum uint64) string
}

// DefaultNamer uses zero-padded file numbers with an .ldb extension, falling
// back to .sst for tables written by older versions.
type DefaultNamer struct{}

func (DefaultNamer) TableFileName(fileNum uint64) string       { return fmt.Sprintf("%06d.ldb", fileNum) }
func (DefaultNamer) LegacyTableFileName(fileNum uint64) string { return fmt.Sprintf("%06d.sst", fileNum) }

// ParseTableFileName extracts the file number from a current or legacy table
// file name. It reports false for any other name.
func ParseTableFileName(name string) (uint64, bool) {
	var base string
	switch {
	case strings.HasSuffix(name, ".ldb"):
		base = strings.TrimSuffix(name, ".ldb")
	case strings.HasSuffix(name, ".sst"):
		base = strings.TrimSuffix(name, ".sst")
	default:
		return 0, false
	}
	if base == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
