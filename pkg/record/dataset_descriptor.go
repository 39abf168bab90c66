package record

import (
	"github.com/ssargent/framedb/pkg/codec"
)

// DatasetDescriptor holds aggregate statistics for a dataset and the list of
// its videos. OriginalVideoPaths[i] and ItemNames[i] describe the same video.
type DatasetDescriptor struct {
	TotalFrames int64 `json:"total_frames"`

	MinFrames     int32 `json:"min_frames"`
	AverageFrames int32 `json:"average_frames"`
	MaxFrames     int32 `json:"max_frames"`

	MinWidth     int32 `json:"min_width"`
	AverageWidth int32 `json:"average_width"`
	MaxWidth     int32 `json:"max_width"`

	MinHeight     int32 `json:"min_height"`
	AverageHeight int32 `json:"average_height"`
	MaxHeight     int32 `json:"max_height"`

	OriginalVideoPaths []string `json:"original_video_paths"`
	ItemNames          []string `json:"item_names"`
}

// NumVideos returns the number of videos in the dataset.
func (d *DatasetDescriptor) NumVideos() int {
	return len(d.OriginalVideoPaths)
}

// AddVideo appends a video and folds its statistics into the aggregates.
func (d *DatasetDescriptor) AddVideo(path, itemName string, item *DatasetItemMetadata) {
	n := int64(len(d.OriginalVideoPaths))
	d.OriginalVideoPaths = append(d.OriginalVideoPaths, path)
	d.ItemNames = append(d.ItemNames, itemName)
	if item == nil {
		return
	}

	d.TotalFrames += int64(item.Frames)
	if n == 0 {
		d.MinFrames, d.MaxFrames = item.Frames, item.Frames
		d.MinWidth, d.MaxWidth = item.Width, item.Width
		d.MinHeight, d.MaxHeight = item.Height, item.Height
	} else {
		d.MinFrames, d.MaxFrames = min(d.MinFrames, item.Frames), max(d.MaxFrames, item.Frames)
		d.MinWidth, d.MaxWidth = min(d.MinWidth, item.Width), max(d.MaxWidth, item.Width)
		d.MinHeight, d.MaxHeight = min(d.MinHeight, item.Height), max(d.MaxHeight, item.Height)
	}
	d.AverageFrames = runningAverage(d.AverageFrames, item.Frames, n)
	d.AverageWidth = runningAverage(d.AverageWidth, item.Width, n)
	d.AverageHeight = runningAverage(d.AverageHeight, item.Height, n)
}

func runningAverage(avg, v int32, n int64) int32 {
	return int32((int64(avg)*n + int64(v)) / (n + 1))
}

// ItemName returns the item name for a video path.
func (d *DatasetDescriptor) ItemName(path string) (string, bool) {
	for i, p := range d.OriginalVideoPaths {
		if p == path && i < len(d.ItemNames) {
			return d.ItemNames[i], true
		}
	}
	return "", false
}

// MarshalBinary encodes the descriptor.
func (d *DatasetDescriptor) MarshalBinary() ([]byte, error) {
	if len(d.OriginalVideoPaths) != len(d.ItemNames) {
		return nil, invalidf(KindDataset, "%d video paths but %d item names",
			len(d.OriginalVideoPaths), len(d.ItemNames))
	}

	enc := codec.NewEncoder(8 + 9*4 + codec.SizeWidth)
	enc.PutInt64(d.TotalFrames)

	enc.PutInt32(d.MinFrames)
	enc.PutInt32(d.AverageFrames)
	enc.PutInt32(d.MaxFrames)

	enc.PutInt32(d.MinWidth)
	enc.PutInt32(d.AverageWidth)
	enc.PutInt32(d.MaxWidth)

	enc.PutInt32(d.MinHeight)
	enc.PutInt32(d.AverageHeight)
	enc.PutInt32(d.MaxHeight)

	enc.PutSize(len(d.OriginalVideoPaths))
	for i, path := range d.OriginalVideoPaths {
		enc.PutString(path)
		enc.PutString(d.ItemNames[i])
	}
	return enc.Bytes(), nil
}

// UnmarshalBinary decodes a descriptor that fills data exactly.
func (d *DatasetDescriptor) UnmarshalBinary(data []byte) error {
	return unmarshalAll(data, KindDataset, func(src codec.Source, pos *uint64) error {
		out, err := DeserializeDatasetDescriptor(src, pos)
		if err != nil {
			return err
		}
		*d = *out
		return nil
	})
}

// SerializeDatasetDescriptor appends one encoded descriptor to w.
func SerializeDatasetDescriptor(w Appender, d *DatasetDescriptor) error {
	data, err := d.MarshalBinary()
	if err != nil {
		return err
	}
	return appendRecord(w, KindDataset, data)
}

// DeserializeDatasetDescriptor decodes a descriptor at *pos.
func DeserializeDatasetDescriptor(src codec.Source, pos *uint64) (*DatasetDescriptor, error) {
	out := &DatasetDescriptor{}
	err := decodeWith(src, pos, KindDataset, func(d *codec.Decoder) error {
		var err error
		if out.TotalFrames, err = d.Int64("total_frames"); err != nil {
			return err
		}

		stats := []struct {
			field string
			dst   *int32
		}{
			{"min_frames", &out.MinFrames},
			{"average_frames", &out.AverageFrames},
			{"max_frames", &out.MaxFrames},
			{"min_width", &out.MinWidth},
			{"average_width", &out.AverageWidth},
			{"max_width", &out.MaxWidth},
			{"min_height", &out.MinHeight},
			{"average_height", &out.AverageHeight},
			{"max_height", &out.MaxHeight},
		}
		for _, s := range stats {
			if *s.dst, err = d.Int32(s.field); err != nil {
				return err
			}
		}

		// Each video is at least two empty strings
		numVideos, err := d.Size("video_count", 2*codec.SizeWidth)
		if err != nil {
			return err
		}
		out.OriginalVideoPaths = make([]string, 0, min(numVideos, 1024))
		out.ItemNames = make([]string, 0, min(numVideos, 1024))
		for i := 0; i < numVideos; i++ {
			path, err := d.String("original_video_path")
			if err != nil {
				return err
			}
			item, err := d.String("item_name")
			if err != nil {
				return err
			}
			out.OriginalVideoPaths = append(out.OriginalVideoPaths, path)
			out.ItemNames = append(out.ItemNames, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
