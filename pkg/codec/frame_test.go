package codec

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_EncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
	}{
		{name: "empty payload", payload: []byte{}},
		{name: "small payload", payload: []byte("catalog")},
		{name: "binary payload", payload: []byte{0x00, 0xFF, 0x46, 0x44, 0x42, 0x53}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFrame(tc.payload)
			encoded := f.Encode()
			assert.Len(t, encoded, FrameHeaderSize+len(tc.payload))
			assert.Equal(t, FrameMagic, string(encoded[:4]))

			var pos uint64
			decoded, err := DecodeFrame(BytesSource(encoded), &pos)
			require.NoError(t, err)
			assert.Equal(t, uint64(len(encoded)), pos)
			assert.Equal(t, FrameVersion, decoded.Version)
			assert.Equal(t, f.ID, decoded.ID)
			assert.Equal(t, f.CRC32, decoded.CRC32)
			assert.Equal(t, tc.payload, decoded.Payload)
			assert.NoError(t, decoded.Validate())
			assert.False(t, decoded.Time().IsZero())
		})
	}
}

func TestDecodeFrame_EmptySourceIsEOF(t *testing.T) {
	var pos uint64
	_, err := DecodeFrame(BytesSource(nil), &pos)
	assert.Equal(t, io.EOF, err)
}

func TestDecodeFrame_ChecksumMismatch(t *testing.T) {
	encoded := NewFrame([]byte("snapshot payload")).Encode()
	encoded[FrameHeaderSize+3] ^= 0xFF

	var pos uint64
	_, err := DecodeFrame(BytesSource(encoded), &pos)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptData)
	assert.False(t, errors.Is(err, ErrTornFrame))
	assert.Equal(t, uint64(0), pos)
}

func TestDecodeFrame_BadMagic(t *testing.T) {
	encoded := NewFrame([]byte("x")).Encode()
	copy(encoded, "NOPE")

	var pos uint64
	_, err := DecodeFrame(BytesSource(encoded), &pos)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptData)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestDecodeFrame_UnsupportedVersion(t *testing.T) {
	f := NewFrame([]byte("x"))
	f.Version = FrameVersion + 1
	encoded := f.Encode()

	var pos uint64
	_, err := DecodeFrame(BytesSource(encoded), &pos)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version")
}

func TestDecodeFrame_Torn(t *testing.T) {
	encoded := NewFrame([]byte("a payload that gets cut")).Encode()

	for _, cut := range []int{1, FrameHeaderSize - 1, FrameHeaderSize + 4} {
		var pos uint64
		_, err := DecodeFrame(BytesSource(encoded[:cut]), &pos)
		require.Error(t, err, "cut at %d", cut)
		assert.True(t, errors.Is(err, ErrTornFrame), "cut at %d", cut)
		assert.ErrorIs(t, err, ErrCorruptData)
	}
}

func TestScanFrames(t *testing.T) {
	first := NewFrame([]byte("one"))
	second := NewFrame([]byte("two"))

	var log []byte
	log = append(log, first.Encode()...)
	log = append(log, second.Encode()...)

	t.Run("complete log", func(t *testing.T) {
		var offsets []uint64
		var payloads []string
		end, err := ScanFrames(BytesSource(log), 0, func(offset uint64, f *Frame) error {
			offsets = append(offsets, offset)
			payloads = append(payloads, string(f.Payload))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(len(log)), end)
		assert.Equal(t, []uint64{0, uint64(first.Size())}, offsets)
		assert.Equal(t, []string{"one", "two"}, payloads)
	})

	t.Run("torn tail", func(t *testing.T) {
		torn := append(append([]byte{}, log...), NewFrame([]byte("three")).Encode()[:10]...)
		count := 0
		end, err := ScanFrames(BytesSource(torn), 0, func(offset uint64, f *Frame) error {
			count++
			return nil
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTornFrame))
		assert.Equal(t, 2, count)
		assert.Equal(t, uint64(len(log)), end)
	})

	t.Run("start offset", func(t *testing.T) {
		var payloads []string
		end, err := ScanFrames(BytesSource(log), uint64(first.Size()), func(offset uint64, f *Frame) error {
			assert.Equal(t, uint64(first.Size()), offset)
			payloads = append(payloads, string(f.Payload))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(len(log)), end)
		assert.Equal(t, []string{"two"}, payloads)
	})

	t.Run("callback error stops scan", func(t *testing.T) {
		stop := errors.New("stop")
		count := 0
		_, err := ScanFrames(BytesSource(log), 0, func(offset uint64, f *Frame) error {
			count++
			return stop
		})
		assert.True(t, errors.Is(err, stop))
		assert.Equal(t, 1, count)
	})
}
