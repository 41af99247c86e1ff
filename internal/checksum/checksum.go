// Package checksum computes the footer checksum stamped on every table file.
//
// Reftable stack tables are immutable once written; a reader must be able to
// tell a truncated or bit-rotted file from a complete one before trusting its
// footer. The stack treats a checksum mismatch as FormatError, never as a
// retryable I/O error.
package checksum

import "github.com/zeebo/xxh3"

// Footer computes the 64-bit checksum stored in a table's footer. It covers
// every byte of the table except the checksum field itself.
func Footer(data []byte) uint64 {
	return xxh3.Hash(data)
}

// VerifyFooter reports whether want matches the checksum of data.
func VerifyFooter(data []byte, want uint64) bool {
	return Footer(data) == want
}
