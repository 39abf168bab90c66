package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDecoder_RoundTrip(t *testing.T) {
	enc := NewEncoder(64)
	enc.PutInt32(-7)
	enc.PutInt32(math.MaxInt32)
	enc.PutInt64(math.MinInt64)
	enc.PutUint64(42)
	enc.PutString("videos/a.mp4")
	enc.PutString("")
	enc.PutBytes([]byte{0x00, 0xFF, 0x10})
	enc.PutSize(3)
	enc.PutInt64s([]int64{0, 4096, 9000})

	dec := NewDecoder(BytesSource(enc.Bytes()), 0)

	i32, err := dec.Int32("a")
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)

	i32, err = dec.Int32("b")
	require.NoError(t, err)
	assert.Equal(t, int32(math.MaxInt32), i32)

	i64, err := dec.Int64("c")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), i64)

	u64, err := dec.Uint64("d")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), u64)

	s, err := dec.String("e")
	require.NoError(t, err)
	assert.Equal(t, "videos/a.mp4", s)

	s, err = dec.String("f")
	require.NoError(t, err)
	assert.Equal(t, "", s)

	b, err := dec.Bytes("g")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xFF, 0x10}, b)

	n, err := dec.Size("h", 8)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	vs, err := dec.Int64s("i", n)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 4096, 9000}, vs)

	assert.Equal(t, uint64(enc.Len()), dec.Pos())
}

func TestEncoder_LittleEndianLayout(t *testing.T) {
	enc := NewEncoder(0)
	enc.PutInt32(1)
	enc.PutString("ab")

	want := []byte{
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		'a', 'b',
	}
	assert.Equal(t, want, enc.Bytes())
}

func TestEncoder_Reset(t *testing.T) {
	enc := NewEncoder(8)
	enc.PutInt64(1)
	enc.Reset()
	assert.Equal(t, 0, enc.Len())
	enc.PutInt32(2)
	assert.Equal(t, 4, enc.Len())
}

func TestDecoder_ShortReadIsCorruption(t *testing.T) {
	testCases := []struct {
		name   string
		data   []byte
		decode func(d *Decoder) error
		field  string
		offset uint64
	}{
		{
			name: "int32 truncated",
			data: []byte{0x01, 0x02},
			decode: func(d *Decoder) error {
				_, err := d.Int32("frames")
				return err
			},
			field:  "frames",
			offset: 0,
		},
		{
			name: "string shorter than prefix",
			data: func() []byte {
				enc := NewEncoder(0)
				enc.PutSize(10)
				enc.PutRaw([]byte("abc"))
				return enc.Bytes()
			}(),
			decode: func(d *Decoder) error {
				_, err := d.String("name")
				return err
			},
			field:  "name",
			offset: 8,
		},
		{
			name: "blob shorter than prefix",
			data: func() []byte {
				enc := NewEncoder(0)
				enc.PutSize(4)
				enc.PutRaw([]byte{1})
				return enc.Bytes()
			}(),
			decode: func(d *Decoder) error {
				_, err := d.Bytes("metadata_packets")
				return err
			},
			field:  "metadata_packets",
			offset: 8,
		},
		{
			name: "int64 array truncated",
			data: make([]byte, 20),
			decode: func(d *Decoder) error {
				_, err := d.Int64s("keyframe_positions", 3)
				return err
			},
			field:  "keyframe_positions",
			offset: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.decode(NewDecoder(BytesSource(tc.data), 0))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorruptData)

			var cde *CorruptDataError
			require.ErrorAs(t, err, &cde)
			assert.Equal(t, tc.field, cde.Field)
			assert.Equal(t, tc.offset, cde.Offset)
			assert.True(t, cde.ShortRead())
		})
	}
}

func TestDecoder_SizeLimit(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.MaxUint64)

	_, err := NewDecoder(BytesSource(buf), 0).Size("keyframe_count", 8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptData)

	var cde *CorruptDataError
	require.ErrorAs(t, err, &cde)
	assert.False(t, cde.ShortRead())
	assert.Contains(t, cde.Error(), "exceeds limit")
}

type failingSource struct{ err error }

func (f failingSource) ReadAt(offset uint64, n int) ([]byte, error) {
	return nil, f.err
}

func TestDecoder_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("backend down")
	_, err := NewDecoder(failingSource{err: boom}, 16).Int64("total_frames")
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, ErrCorruptData))
	assert.Contains(t, err.Error(), "offset 16")
}

func TestBytesSource_ReadAt(t *testing.T) {
	src := BytesSource([]byte("abcdef"))

	data, err := src.ReadAt(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("cde"), data)

	data, err = src.ReadAt(4, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("ef"), data)

	data, err = src.ReadAt(6, 1)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDecoder_RawCopies(t *testing.T) {
	buf := []byte{1, 2, 3}
	out, err := NewDecoder(BytesSource(buf), 0).Raw("raw", 3)
	require.NoError(t, err)
	buf[0] = 9
	assert.True(t, bytes.Equal([]byte{1, 2, 3}, out))
}

func TestSortedKeys(t *testing.T) {
	m := map[int32]string{5: "e", -1: "z", 2: "b"}
	assert.Equal(t, []int32{-1, 2, 5}, SortedKeys(m))
	assert.Empty(t, SortedKeys(map[int32]int{}))
}
