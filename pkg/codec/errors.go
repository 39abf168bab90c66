package codec

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrCorruptData matches every decode failure caused by malformed or
	// truncated input.
	ErrCorruptData = errors.New("corrupt data")

	// ErrTornFrame matches a snapshot frame that ends before its declared size.
	ErrTornFrame = errors.New("torn frame")
)

// CorruptDataError describes a field that could not be decoded.
type CorruptDataError struct {
	Field  string // Field being decoded
	Offset uint64 // Byte offset where the field starts
	Want   int    // Bytes required
	Got    int    // Bytes available
	Reason string // Set when the failure is not a short read
}

func (e *CorruptDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("corrupt data: field %q at offset %d: %s", e.Field, e.Offset, e.Reason)
	}
	return fmt.Sprintf("corrupt data: field %q at offset %d: want %d bytes, got %d", e.Field, e.Offset, e.Want, e.Got)
}

// Is reports whether target is ErrCorruptData.
func (e *CorruptDataError) Is(target error) bool {
	return target == ErrCorruptData
}

// ShortRead reports whether the field ran past the end of the source.
func (e *CorruptDataError) ShortRead() bool {
	return e.Reason == "" && e.Got < e.Want
}
