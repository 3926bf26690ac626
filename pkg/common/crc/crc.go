// Package crc computes the masked CRC-32C checksums stored in block
// trailers and log fragment headers.
package crc

import "hash/crc32"

const maskDelta = 0xa282ead8

var table = crc32.MakeTable(crc32.Castagnoli)

// Value returns the CRC-32C of data
func Value(data []byte) uint32 {
	return crc32.Checksum(data, table)
}

// Extend returns the CRC-32C of the concatenation of the bytes that produced
// c and data.
func Extend(c uint32, data []byte) uint32 {
	return crc32.Update(c, table, data)
}

// Mask returns a masked representation of c. Storing the CRC of a string
// that itself contains embedded CRCs is problematic, so stored values are
// rotated and offset.
func Mask(c uint32) uint32 {
	return ((c >> 15) | (c << 17)) + maskDelta
}

// Unmask reverses Mask
func Unmask(m uint32) uint32 {
	rot := m - maskDelta
	return (rot >> 17) | (rot << 15)
}
