package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
)

// MaxFieldSize bounds any single size-prefixed field or array.
const MaxFieldSize = 1 << 32

// Source is a random-access byte source. ReadAt may return fewer than n
// bytes only when the source ends before offset+n; any other failure is
// reported through err.
type Source interface {
	ReadAt(offset uint64, n int) ([]byte, error)
}

// BytesSource serves reads from an in-memory slice.
type BytesSource []byte

// ReadAt implements Source.
func (b BytesSource) ReadAt(offset uint64, n int) ([]byte, error) {
	if offset >= uint64(len(b)) {
		return nil, nil
	}
	end := offset + uint64(n)
	if end > uint64(len(b)) {
		end = uint64(len(b))
	}
	return b[offset:end], nil
}

// Decoder reads primitives from a Source, advancing a cursor.
type Decoder struct {
	src Source
	pos uint64
}

// NewDecoder returns a decoder reading src from pos.
func NewDecoder(src Source, pos uint64) *Decoder {
	return &Decoder{src: src, pos: pos}
}

// Pos returns the current cursor.
func (d *Decoder) Pos() uint64 {
	return d.pos
}

// read fetches exactly n bytes for field or fails.
func (d *Decoder) read(field string, n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	data, err := d.src.ReadAt(d.pos, n)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s at offset %d", field, d.pos)
	}
	if len(data) < n {
		return nil, &CorruptDataError{Field: field, Offset: d.pos, Want: n, Got: len(data)}
	}
	d.pos += uint64(n)
	return data[:n], nil
}

// Raw reads n bytes without a prefix.
func (d *Decoder) Raw(field string, n int) ([]byte, error) {
	data, err := d.read(field, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, data)
	return out, nil
}

// Int32 reads a 4 byte integer.
func (d *Decoder) Int32(field string) (int32, error) {
	data, err := d.read(field, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(data)), nil
}

// Int64 reads an 8 byte integer.
func (d *Decoder) Int64(field string) (int64, error) {
	data, err := d.read(field, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

// Uint64 reads an 8 byte unsigned integer.
func (d *Decoder) Uint64(field string) (uint64, error) {
	data, err := d.read(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// Size reads a count of elements that each occupy at least elemSize bytes.
// Counts that could not fit in MaxFieldSize are corruption.
func (d *Decoder) Size(field string, elemSize int) (int, error) {
	start := d.pos
	n, err := d.Uint64(field)
	if err != nil {
		return 0, err
	}
	if elemSize < 1 {
		elemSize = 1
	}
	if n > MaxFieldSize/uint64(elemSize) {
		return 0, &CorruptDataError{
			Field:  field,
			Offset: start,
			Reason: fmt.Sprintf("size %d exceeds limit", n),
		}
	}
	return int(n), nil
}

// Bytes reads a size-prefixed byte sequence.
func (d *Decoder) Bytes(field string) ([]byte, error) {
	n, err := d.Size(field+".len", 1)
	if err != nil {
		return nil, err
	}
	return d.Raw(field, n)
}

// String reads a size-prefixed string.
func (d *Decoder) String(field string) (string, error) {
	n, err := d.Size(field+".len", 1)
	if err != nil {
		return "", err
	}
	data, err := d.read(field, n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Int64s reads n raw int64 values.
func (d *Decoder) Int64s(field string, n int) ([]int64, error) {
	if uint64(n) > MaxFieldSize/8 {
		return nil, &CorruptDataError{Field: field, Offset: d.pos, Reason: fmt.Sprintf("count %d exceeds limit", n)}
	}
	data, err := d.read(field, n*8)
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return out, nil
}
