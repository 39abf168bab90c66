package record

import (
	"time"

	"github.com/ssargent/framedb/pkg/codec"
)

// DatasetItemWebTimestamps remaps a video's frames to browser-friendly
// timestamps. PTSTimestamps and DTSTimestamps hold one entry per frame.
type DatasetItemWebTimestamps struct {
	TimeBaseNumerator   int32   `json:"time_base_numerator"`
	TimeBaseDenominator int32   `json:"time_base_denominator"`
	PTSTimestamps       []int64 `json:"pts_timestamps"`
	DTSTimestamps       []int64 `json:"dts_timestamps"`
}

// NumFrames returns the number of frames in the table.
func (w *DatasetItemWebTimestamps) NumFrames() int {
	return len(w.PTSTimestamps)
}

// PresentationTime converts the pts of frame to a duration using the time
// base. It returns false for frames outside the table or a zero denominator.
func (w *DatasetItemWebTimestamps) PresentationTime(frame int) (time.Duration, bool) {
	if frame < 0 || frame >= len(w.PTSTimestamps) || w.TimeBaseDenominator == 0 {
		return 0, false
	}
	ticks := w.PTSTimestamps[frame] * int64(w.TimeBaseNumerator)
	den := int64(w.TimeBaseDenominator)
	// Whole seconds first so large pts values do not overflow.
	secs, rem := ticks/den, ticks%den
	return time.Duration(secs)*time.Second + time.Duration(rem*int64(time.Second)/den), true
}

// MarshalBinary encodes the timestamp table.
func (w *DatasetItemWebTimestamps) MarshalBinary() ([]byte, error) {
	if len(w.PTSTimestamps) != len(w.DTSTimestamps) {
		return nil, invalidf(KindWebTimestamps, "%d pts but %d dts entries",
			len(w.PTSTimestamps), len(w.DTSTimestamps))
	}

	n := len(w.PTSTimestamps)
	enc := codec.NewEncoder(2*4 + codec.SizeWidth + 2*8*n)
	enc.PutInt32(w.TimeBaseNumerator)
	enc.PutInt32(w.TimeBaseDenominator)
	enc.PutSize(n)
	enc.PutInt64s(w.PTSTimestamps)
	enc.PutInt64s(w.DTSTimestamps)
	return enc.Bytes(), nil
}

// UnmarshalBinary decodes a table that fills data exactly.
func (w *DatasetItemWebTimestamps) UnmarshalBinary(data []byte) error {
	return unmarshalAll(data, KindWebTimestamps, func(src codec.Source, pos *uint64) error {
		out, err := DeserializeDatasetItemWebTimestamps(src, pos)
		if err != nil {
			return err
		}
		*w = *out
		return nil
	})
}

// SerializeDatasetItemWebTimestamps appends one encoded table to w.
func SerializeDatasetItemWebTimestamps(w Appender, ts *DatasetItemWebTimestamps) error {
	data, err := ts.MarshalBinary()
	if err != nil {
		return err
	}
	return appendRecord(w, KindWebTimestamps, data)
}

// DeserializeDatasetItemWebTimestamps decodes a table at *pos.
func DeserializeDatasetItemWebTimestamps(src codec.Source, pos *uint64) (*DatasetItemWebTimestamps, error) {
	out := &DatasetItemWebTimestamps{}
	err := decodeWith(src, pos, KindWebTimestamps, func(d *codec.Decoder) error {
		var err error
		if out.TimeBaseNumerator, err = d.Int32("time_base_numerator"); err != nil {
			return err
		}
		if out.TimeBaseDenominator, err = d.Int32("time_base_denominator"); err != nil {
			return err
		}
		n, err := d.Size("frame_count", 2*8)
		if err != nil {
			return err
		}
		if out.PTSTimestamps, err = d.Int64s("pts_timestamps", n); err != nil {
			return err
		}
		out.DTSTimestamps, err = d.Int64s("dts_timestamps", n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
