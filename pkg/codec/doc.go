// Package codec provides the binary primitives shared by every FrameDB record.
//
// The codec has no notion of entities. It knows how to lay out fixed-width
// integers, length-prefixed byte sequences and strings, and raw int64 arrays,
// and how to read them back through a cursor. The record package composes
// these primitives into the catalog, dataset, item and timestamp layouts.
//
// # Layout rules
//
// All integers are little-endian. Length and count fields ("size" fields) are
// 8 bytes wide:
//
//	int32:  [v(4)]
//	int64:  [v(8)]
//	size:   [n(8)]
//	bytes:  [n(8)][data(n)]
//	string: [n(8)][utf8(n)]          no terminator
//	int64s: [v0(8)][v1(8)]...        count is written separately by the caller
//
// Maps and sets are written as a size followed by their entries. Entries are
// emitted in ascending key order so that the same catalog always produces the
// same bytes.
//
// # Decoding
//
// A Decoder reads from a Source at an explicit cursor. A Source may return
// fewer bytes than requested only at end of stream; the Decoder turns any
// short read into a *CorruptDataError carrying the field name and offset:
//
//	dec := codec.NewDecoder(codec.BytesSource(buf), 0)
//	frames, err := dec.Int32("frames")
//	if err != nil {
//	    return err // errors.Is(err, codec.ErrCorruptData) on truncation
//	}
//
// Size fields above MaxFieldSize are reported as corruption before any
// allocation happens.
//
// # Snapshot frames
//
// Records themselves carry no version tag. Whole snapshots are wrapped in a
// frame when they are appended to a log:
//
//	[Magic(4)][Version(2)][Flags(2)][ID(20)][PayloadSize(8)][CRC32(4)][Payload]
//
// The CRC32 (IEEE) covers Version, Flags, ID, PayloadSize and the payload. The
// ID is a KSUID, so frames sort by creation time. A frame cut short at the end
// of a log is reported as ErrTornFrame; a complete frame whose checksum does
// not match is reported as ErrCorruptData.
//
// # Thread Safety
//
// Encoders and Decoders are not safe for concurrent use. Separate instances
// over separate sources may be used from any number of goroutines.
package codec
