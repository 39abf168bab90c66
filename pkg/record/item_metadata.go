package record

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/codec"
)

// VideoCodecType identifies the compression format of a video stream.
type VideoCodecType int32

const (
	CodecMPEG1 VideoCodecType = iota
	CodecMPEG2
	CodecMPEG4
	CodecVC1
	CodecH264
	CodecJPEG
	CodecH264SVC
	CodecH264MVC
	CodecHEVC
	CodecVP8
	CodecVP9
)

var codecNames = map[VideoCodecType]string{
	CodecMPEG1:   "mpeg1",
	CodecMPEG2:   "mpeg2",
	CodecMPEG4:   "mpeg4",
	CodecVC1:     "vc1",
	CodecH264:    "h264",
	CodecJPEG:    "jpeg",
	CodecH264SVC: "h264_svc",
	CodecH264MVC: "h264_mvc",
	CodecHEVC:    "hevc",
	CodecVP8:     "vp8",
	CodecVP9:     "vp9",
}

func (c VideoCodecType) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("codec(%d)", int32(c))
}

// ParseVideoCodecType is the inverse of String.
func ParseVideoCodecType(s string) (VideoCodecType, error) {
	for c, name := range codecNames {
		if name == s {
			return c, nil
		}
	}
	var n int32
	if _, err := fmt.Sscanf(s, "codec(%d)", &n); err == nil {
		return VideoCodecType(n), nil
	}
	return 0, errors.Newf("unknown codec %q", s)
}

// MarshalText writes the codec name.
func (c VideoCodecType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText reads a codec name.
func (c *VideoCodecType) UnmarshalText(text []byte) error {
	v, err := ParseVideoCodecType(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// VideoChromaFormat is the chroma subsampling of decoded frames.
type VideoChromaFormat int32

const (
	ChromaMonochrome VideoChromaFormat = iota
	Chroma420
	Chroma422
	Chroma444
)

func (c VideoChromaFormat) String() string {
	switch c {
	case ChromaMonochrome:
		return "monochrome"
	case Chroma420:
		return "yuv420"
	case Chroma422:
		return "yuv422"
	case Chroma444:
		return "yuv444"
	default:
		return fmt.Sprintf("chroma(%d)", int32(c))
	}
}

// ParseVideoChromaFormat is the inverse of String.
func ParseVideoChromaFormat(s string) (VideoChromaFormat, error) {
	for c := ChromaMonochrome; c <= Chroma444; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	var n int32
	if _, err := fmt.Sscanf(s, "chroma(%d)", &n); err == nil {
		return VideoChromaFormat(n), nil
	}
	return 0, errors.Newf("unknown chroma format %q", s)
}

// MarshalText writes the chroma format name.
func (c VideoChromaFormat) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText reads a chroma format name.
func (c *VideoChromaFormat) UnmarshalText(text []byte) error {
	v, err := ParseVideoChromaFormat(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DatasetItemMetadata is the decode metadata of one video. The three
// keyframe slices are parallel: entry i of each describes the same keyframe.
type DatasetItemMetadata struct {
	Frames       int32             `json:"frames"`
	Width        int32             `json:"width"`
	Height       int32             `json:"height"`
	CodecType    VideoCodecType    `json:"codec_type"`
	ChromaFormat VideoChromaFormat `json:"chroma_format"`

	// MetadataPackets is the codec-specific header data (e.g. SPS/PPS).
	MetadataPackets []byte `json:"metadata_packets"`

	KeyframePositions   []int64 `json:"keyframe_positions"`
	KeyframeTimestamps  []int64 `json:"keyframe_timestamps"`
	KeyframeByteOffsets []int64 `json:"keyframe_byte_offsets"`
}

// NumKeyframes returns the number of indexed keyframes.
func (m *DatasetItemMetadata) NumKeyframes() int {
	return len(m.KeyframePositions)
}

func (m *DatasetItemMetadata) checkKeyframes() error {
	n := len(m.KeyframePositions)
	if len(m.KeyframeTimestamps) != n || len(m.KeyframeByteOffsets) != n {
		return invalidf(KindItemMetadata, "keyframe sequences differ in length: %d positions, %d timestamps, %d offsets",
			n, len(m.KeyframeTimestamps), len(m.KeyframeByteOffsets))
	}
	return nil
}

// KeyframeIndex returns the index of the last keyframe at or before frame,
// or -1 when frame precedes every keyframe. Positions must be ascending.
func (m *DatasetItemMetadata) KeyframeIndex(frame int64) int {
	i := sort.Search(len(m.KeyframePositions), func(i int) bool {
		return m.KeyframePositions[i] > frame
	})
	return i - 1
}

// Keyframe is one entry of the keyframe index.
type Keyframe struct {
	Position   int64
	Timestamp  int64
	ByteOffset int64
}

// SeekKeyframe returns the keyframe a decoder must start from to reach frame.
func (m *DatasetItemMetadata) SeekKeyframe(frame int64) (Keyframe, bool) {
	i := m.KeyframeIndex(frame)
	if i < 0 || i >= len(m.KeyframeTimestamps) || i >= len(m.KeyframeByteOffsets) {
		return Keyframe{}, false
	}
	return Keyframe{
		Position:   m.KeyframePositions[i],
		Timestamp:  m.KeyframeTimestamps[i],
		ByteOffset: m.KeyframeByteOffsets[i],
	}, true
}

// MarshalBinary encodes the item metadata.
func (m *DatasetItemMetadata) MarshalBinary() ([]byte, error) {
	if err := m.checkKeyframes(); err != nil {
		return nil, err
	}

	n := len(m.KeyframePositions)
	enc := codec.NewEncoder(5*4 + 2*codec.SizeWidth + len(m.MetadataPackets) + 3*8*n)
	enc.PutInt32(m.Frames)
	enc.PutInt32(m.Width)
	enc.PutInt32(m.Height)
	enc.PutInt32(int32(m.CodecType))
	enc.PutInt32(int32(m.ChromaFormat))

	enc.PutBytes(m.MetadataPackets)

	enc.PutSize(n)
	enc.PutInt64s(m.KeyframePositions)
	enc.PutInt64s(m.KeyframeTimestamps)
	enc.PutInt64s(m.KeyframeByteOffsets)
	return enc.Bytes(), nil
}

// UnmarshalBinary decodes item metadata that fills data exactly.
func (m *DatasetItemMetadata) UnmarshalBinary(data []byte) error {
	return unmarshalAll(data, KindItemMetadata, func(src codec.Source, pos *uint64) error {
		out, err := DeserializeDatasetItemMetadata(src, pos)
		if err != nil {
			return err
		}
		*m = *out
		return nil
	})
}

// SerializeDatasetItemMetadata appends one encoded item to w.
func SerializeDatasetItemMetadata(w Appender, m *DatasetItemMetadata) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return appendRecord(w, KindItemMetadata, data)
}

// DeserializeDatasetItemMetadata decodes item metadata at *pos.
func DeserializeDatasetItemMetadata(src codec.Source, pos *uint64) (*DatasetItemMetadata, error) {
	out := &DatasetItemMetadata{}
	err := decodeWith(src, pos, KindItemMetadata, func(d *codec.Decoder) error {
		var err error
		if out.Frames, err = d.Int32("frames"); err != nil {
			return err
		}
		if out.Width, err = d.Int32("width"); err != nil {
			return err
		}
		if out.Height, err = d.Int32("height"); err != nil {
			return err
		}
		codecType, err := d.Int32("codec_type")
		if err != nil {
			return err
		}
		out.CodecType = VideoCodecType(codecType)
		chroma, err := d.Int32("chroma_format")
		if err != nil {
			return err
		}
		out.ChromaFormat = VideoChromaFormat(chroma)

		if out.MetadataPackets, err = d.Bytes("metadata_packets"); err != nil {
			return err
		}

		// Three int64 arrays follow the count
		n, err := d.Size("keyframe_count", 3*8)
		if err != nil {
			return err
		}
		if out.KeyframePositions, err = d.Int64s("keyframe_positions", n); err != nil {
			return err
		}
		if out.KeyframeTimestamps, err = d.Int64s("keyframe_timestamps", n); err != nil {
			return err
		}
		out.KeyframeByteOffsets, err = d.Int64s("keyframe_byte_offsets", n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
