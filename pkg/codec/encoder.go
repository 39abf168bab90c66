package codec

import (
	"encoding/binary"
	"sort"
)

// SizeWidth is the width in bytes of every length and count field.
const SizeWidth = 8

// Encoder appends primitives to an in-memory buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder with room for sizeHint bytes.
func NewEncoder(sizeHint int) *Encoder {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// PutInt32 appends a 4 byte integer.
func (e *Encoder) PutInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

// PutInt64 appends an 8 byte integer.
func (e *Encoder) PutInt64(v int64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v))
}

// PutUint64 appends an 8 byte unsigned integer.
func (e *Encoder) PutUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// PutSize appends a length or count field.
func (e *Encoder) PutSize(n int) {
	e.PutUint64(uint64(n))
}

// PutBytes appends a size-prefixed byte sequence.
func (e *Encoder) PutBytes(b []byte) {
	e.PutSize(len(b))
	e.buf = append(e.buf, b...)
}

// PutString appends a size-prefixed string with no terminator.
func (e *Encoder) PutString(s string) {
	e.PutSize(len(s))
	e.buf = append(e.buf, s...)
}

// PutInt64s appends the raw values of vs. The count is not written.
func (e *Encoder) PutInt64s(vs []int64) {
	for _, v := range vs {
		e.PutInt64(v)
	}
}

// PutRaw appends b without a prefix.
func (e *Encoder) PutRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

// Bytes returns the encoded buffer. The slice aliases the encoder's storage.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Reset empties the buffer, keeping its capacity.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[int32]V) []int32 {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
