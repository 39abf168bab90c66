package record

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/codec"
)

// ErrMissingField is returned when a job document lacks a required field.
var ErrMissingField = errors.New("missing required field")

// Interval is a half-open frame range [Start, End).
type Interval struct {
	Start int64
	End   int64
}

// Len returns the number of frames in the interval.
func (iv Interval) Len() int64 {
	return iv.End - iv.Start
}

// MarshalJSON writes the interval as a two-element array.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{iv.Start, iv.End})
}

// UnmarshalJSON reads a two-element integer array.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(err, "interval must be an array of two integers")
	}
	if len(pair) != 2 {
		return errors.Newf("interval must have 2 elements, got %d", len(pair))
	}
	iv.Start, iv.End = pair[0], pair[1]
	return nil
}

// JobDescriptor is the work specification of a job: the dataset it reads
// and the frame intervals to process for each video path.
type JobDescriptor struct {
	DatasetName string
	Intervals   map[string][]Interval
}

// NewJobDescriptor returns an empty descriptor for dataset.
func NewJobDescriptor(dataset string) *JobDescriptor {
	return &JobDescriptor{DatasetName: dataset, Intervals: make(map[string][]Interval)}
}

// AddInterval appends [start, end) to the intervals of path.
func (j *JobDescriptor) AddInterval(path string, start, end int64) {
	if j.Intervals == nil {
		j.Intervals = make(map[string][]Interval)
	}
	j.Intervals[path] = append(j.Intervals[path], Interval{Start: start, End: end})
}

// Paths returns the video paths in ascending order.
func (j *JobDescriptor) Paths() []string {
	paths := make([]string, 0, len(j.Intervals))
	for p := range j.Intervals {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FrameCount returns the total number of frames the job covers.
func (j *JobDescriptor) FrameCount() int64 {
	var total int64
	for _, ivs := range j.Intervals {
		for _, iv := range ivs {
			total += iv.Len()
		}
	}
	return total
}

// Validate checks that every interval is non-negative and not reversed.
func (j *JobDescriptor) Validate() error {
	for _, path := range j.Paths() {
		for i, iv := range j.Intervals[path] {
			if iv.Start < 0 || iv.End < iv.Start {
				return invalidf(KindJob, "video %q interval %d is [%d, %d)", path, i, iv.Start, iv.End)
			}
		}
	}
	return nil
}

type jobVideo struct {
	Path      string     `json:"path"`
	Intervals []Interval `json:"intervals"`
}

type jobDocument struct {
	DatasetName string     `json:"dataset_name"`
	Videos      []jobVideo `json:"videos"`
}

// MarshalJSON writes the job document with videos sorted by path.
func (j *JobDescriptor) MarshalJSON() ([]byte, error) {
	doc := jobDocument{DatasetName: j.DatasetName, Videos: make([]jobVideo, 0, len(j.Intervals))}
	for _, path := range j.Paths() {
		ivs := j.Intervals[path]
		if ivs == nil {
			ivs = []Interval{}
		}
		doc.Videos = append(doc.Videos, jobVideo{Path: path, Intervals: ivs})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads a job document. Every field must be present; a null
// list is read as empty.
func (j *JobDescriptor) UnmarshalJSON(data []byte) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return err
	}

	nameRaw, err := requireField(root, "dataset_name")
	if err != nil {
		return err
	}
	var name string
	if err := json.Unmarshal(nameRaw, &name); err != nil {
		return errors.Wrap(err, "dataset_name")
	}

	videosRaw, err := requireField(root, "videos")
	if err != nil {
		return err
	}
	var videos []map[string]json.RawMessage
	if err := json.Unmarshal(videosRaw, &videos); err != nil {
		return errors.Wrap(err, "videos")
	}

	out := NewJobDescriptor(name)
	for i, video := range videos {
		pathRaw, err := requireField(video, "path")
		if err != nil {
			return errors.Wrapf(err, "videos[%d]", i)
		}
		var path string
		if err := json.Unmarshal(pathRaw, &path); err != nil {
			return errors.Wrapf(err, "videos[%d].path", i)
		}
		ivRaw, err := requireField(video, "intervals")
		if err != nil {
			return errors.Wrapf(err, "videos[%d]", i)
		}
		var ivs []Interval
		if err := json.Unmarshal(ivRaw, &ivs); err != nil {
			return errors.Wrapf(err, "videos[%d].intervals", i)
		}
		if ivs == nil {
			ivs = []Interval{}
		}
		if _, dup := out.Intervals[path]; dup {
			return errors.Newf("videos[%d]: duplicate path %q", i, path)
		}
		out.Intervals[path] = ivs
	}

	*j = *out
	return nil
}

func requireField(obj map[string]json.RawMessage, field string) (json.RawMessage, error) {
	raw, ok := obj[field]
	if !ok {
		return nil, errors.Wrapf(ErrMissingField, "%q", field)
	}
	return raw, nil
}

// SerializeJobDescriptor validates j and appends its JSON document to w.
func SerializeJobDescriptor(w Appender, j *JobDescriptor) error {
	if err := j.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return errors.Wrapf(err, "encode %s", KindJob)
	}
	return appendRecord(w, KindJob, data)
}

// DeserializeJobDescriptor reads from *pos to the end of src and decodes the
// job document found there. Intervals are returned as stored; call Validate
// to check them.
func DeserializeJobDescriptor(src codec.Source, pos *uint64) (*JobDescriptor, error) {
	start := *pos
	data, err := readToEnd(src, start)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s at offset %d", KindJob, start)
	}

	out := &JobDescriptor{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, codec.ErrCorruptData), "decode %s at offset %d", KindJob, start)
	}

	*pos = start + uint64(len(data))
	return out, nil
}

// readToEnd reads src from offset until a short read marks the end.
func readToEnd(src codec.Source, offset uint64) ([]byte, error) {
	const chunk = 4096
	var out []byte
	for {
		data, err := src.ReadAt(offset, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		offset += uint64(len(data))
		if len(data) < chunk {
			return out, nil
		}
	}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d, %d)", iv.Start, iv.End)
}
