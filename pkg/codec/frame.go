package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
)

const (
	// FrameMagic opens every snapshot frame.
	FrameMagic = "FDBS"

	// FrameVersion is the current frame format version.
	FrameVersion uint16 = 1

	frameIDSize = 20

	// FrameHeaderSize is Magic(4) + Version(2) + Flags(2) + ID(20) + PayloadSize(8) + CRC32(4).
	FrameHeaderSize = 4 + 2 + 2 + frameIDSize + 8 + 4
)

// Frame wraps one snapshot payload with a version, identity and checksum.
type Frame struct {
	Version     uint16      // Frame format version
	Flags       uint16      // Reserved, written as zero
	ID          ksuid.KSUID // Time-ordered snapshot id
	PayloadSize uint64      // Size of Payload in bytes
	CRC32       uint32      // Checksum over header fields and payload
	Payload     []byte      // Encoded snapshot
}

// NewFrame wraps payload in a frame with a fresh id.
func NewFrame(payload []byte) *Frame {
	f := &Frame{
		Version:     FrameVersion,
		ID:          ksuid.New(),
		PayloadSize: uint64(len(payload)),
		Payload:     payload,
	}
	f.CRC32 = f.calculateCRC32()
	return f
}

// Encode serializes the frame.
func (f *Frame) Encode() []byte {
	buf := make([]byte, f.Size())
	copy(buf[0:4], FrameMagic)
	binary.LittleEndian.PutUint16(buf[4:], f.Version)
	binary.LittleEndian.PutUint16(buf[6:], f.Flags)
	copy(buf[8:8+frameIDSize], f.ID.Bytes())
	binary.LittleEndian.PutUint64(buf[28:], f.PayloadSize)
	binary.LittleEndian.PutUint32(buf[36:], f.CRC32)
	copy(buf[FrameHeaderSize:], f.Payload)
	return buf
}

// Size returns the encoded size of the frame.
func (f *Frame) Size() int {
	return FrameHeaderSize + len(f.Payload)
}

// Time returns the creation time embedded in the frame id.
func (f *Frame) Time() time.Time {
	return f.ID.Time()
}

// Validate checks the frame checksum.
func (f *Frame) Validate() error {
	if sum := f.calculateCRC32(); sum != f.CRC32 {
		return fmt.Errorf("CRC32 mismatch: %d != %d", f.CRC32, sum)
	}
	return nil
}

// calculateCRC32 computes the checksum over everything but the magic and the CRC field.
func (f *Frame) calculateCRC32() uint32 {
	var hdr [4 + frameIDSize + 8]byte
	binary.LittleEndian.PutUint16(hdr[0:], f.Version)
	binary.LittleEndian.PutUint16(hdr[2:], f.Flags)
	copy(hdr[4:], f.ID.Bytes())
	binary.LittleEndian.PutUint64(hdr[4+frameIDSize:], f.PayloadSize)

	crc := crc32.NewIEEE()
	_, _ = crc.Write(hdr[:])
	_, _ = crc.Write(f.Payload)
	return crc.Sum32()
}

// DecodeFrame reads the frame starting at *pos and advances *pos past it.
// It returns io.EOF when *pos is exactly at the end of src, ErrTornFrame when
// the frame is cut short, and ErrCorruptData for bad magic, an unknown
// version or a checksum mismatch.
func DecodeFrame(src Source, pos *uint64) (*Frame, error) {
	start := *pos
	hdr, err := src.ReadAt(start, FrameHeaderSize)
	if err != nil {
		return nil, errors.Wrapf(err, "read frame header at offset %d", start)
	}
	if len(hdr) == 0 {
		return nil, io.EOF
	}
	if len(hdr) < FrameHeaderSize {
		return nil, tornFrame("frame.header", start, FrameHeaderSize, len(hdr))
	}
	if string(hdr[0:4]) != FrameMagic {
		return nil, &CorruptDataError{Field: "frame.magic", Offset: start, Reason: fmt.Sprintf("bad magic %q", hdr[0:4])}
	}

	f := &Frame{
		Version:     binary.LittleEndian.Uint16(hdr[4:]),
		Flags:       binary.LittleEndian.Uint16(hdr[6:]),
		PayloadSize: binary.LittleEndian.Uint64(hdr[28:]),
		CRC32:       binary.LittleEndian.Uint32(hdr[36:]),
	}
	if f.Version == 0 || f.Version > FrameVersion {
		return nil, &CorruptDataError{Field: "frame.version", Offset: start + 4, Reason: fmt.Sprintf("unsupported version %d", f.Version)}
	}
	id, err := ksuid.FromBytes(hdr[8 : 8+frameIDSize])
	if err != nil {
		return nil, &CorruptDataError{Field: "frame.id", Offset: start + 8, Reason: err.Error()}
	}
	f.ID = id
	if f.PayloadSize > MaxFieldSize {
		return nil, &CorruptDataError{Field: "frame.payload_size", Offset: start + 28, Reason: fmt.Sprintf("size %d exceeds limit", f.PayloadSize)}
	}

	payloadAt := start + FrameHeaderSize
	payload, err := src.ReadAt(payloadAt, int(f.PayloadSize))
	if err != nil {
		return nil, errors.Wrapf(err, "read frame payload at offset %d", payloadAt)
	}
	if uint64(len(payload)) < f.PayloadSize {
		return nil, tornFrame("frame.payload", payloadAt, int(f.PayloadSize), len(payload))
	}
	f.Payload = make([]byte, f.PayloadSize)
	copy(f.Payload, payload)

	if err := f.Validate(); err != nil {
		return nil, &CorruptDataError{Field: "frame.crc32", Offset: start + 36, Reason: err.Error()}
	}

	*pos = payloadAt + f.PayloadSize
	return f, nil
}

// ScanFrames calls fn for every frame in src, in order, starting at pos.
// It returns the offset just past the last good frame. Scanning stops at the
// first error; a torn tail is returned as ErrTornFrame so callers may decide
// to ignore it.
func ScanFrames(src Source, pos uint64, fn func(offset uint64, f *Frame) error) (uint64, error) {
	for {
		offset := pos
		f, err := DecodeFrame(src, &pos)
		if err == io.EOF {
			return offset, nil
		}
		if err != nil {
			return offset, err
		}
		if err := fn(offset, f); err != nil {
			return offset, err
		}
	}
}

func tornFrame(field string, offset uint64, want, got int) error {
	return errors.Mark(&CorruptDataError{Field: field, Offset: offset, Want: want, Got: got}, ErrTornFrame)
}
