package cmd

import (
	"encoding/hex"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/record"
	"gopkg.in/yaml.v3"
)

// Manifest lists the probed videos of a dataset being ingested
type Manifest struct {
	Videos []ManifestVideo `yaml:"videos"`
}

// ManifestVideo is the probe output for one video
type ManifestVideo struct {
	Path            string             `yaml:"path"`
	Item            string             `yaml:"item,omitempty"` // Defaults to the video's index
	Frames          int32              `yaml:"frames"`
	Width           int32              `yaml:"width"`
	Height          int32              `yaml:"height"`
	Codec           string             `yaml:"codec"`
	Chroma          string             `yaml:"chroma"`
	MetadataPackets string             `yaml:"metadata_packets,omitempty"` // Hex encoded
	Keyframes       []ManifestKeyframe `yaml:"keyframes"`
	TimeBase        [2]int32           `yaml:"time_base"`
	PTS             []int64            `yaml:"pts"`
	DTS             []int64            `yaml:"dts"`
}

// ManifestKeyframe is one keyframe index entry
type ManifestKeyframe struct {
	Position  int64 `yaml:"position"`
	Timestamp int64 `yaml:"timestamp"`
	Offset    int64 `yaml:"offset"`
}

// ingestedVideo is a manifest entry converted to its on-disk records
type ingestedVideo struct {
	path       string
	item       string
	metadata   *record.DatasetItemMetadata
	timestamps *record.DatasetItemWebTimestamps
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "parse manifest %s", path)
	}
	return &m, nil
}

// records converts the manifest and checks it for duplicate paths and items
func (m *Manifest) records() ([]ingestedVideo, error) {
	paths := make(map[string]struct{}, len(m.Videos))
	items := make(map[string]struct{}, len(m.Videos))
	out := make([]ingestedVideo, 0, len(m.Videos))

	for i, v := range m.Videos {
		if v.Path == "" {
			return nil, errors.Newf("video %d: path is required", i)
		}
		item := v.Item
		if item == "" {
			item = strconv.Itoa(i)
		}
		if err := record.ValidateName("item", item); err != nil {
			return nil, errors.Wrapf(err, "video %d", i)
		}
		if _, dup := paths[v.Path]; dup {
			return nil, errors.Newf("video %d: duplicate path %q", i, v.Path)
		}
		if _, dup := items[item]; dup {
			return nil, errors.Newf("video %d: duplicate item %q", i, item)
		}
		paths[v.Path] = struct{}{}
		items[item] = struct{}{}

		meta, err := v.metadata()
		if err != nil {
			return nil, errors.Wrapf(err, "video %q", v.Path)
		}
		if len(v.PTS) != len(v.DTS) {
			return nil, errors.Newf("video %q: %d pts but %d dts", v.Path, len(v.PTS), len(v.DTS))
		}
		out = append(out, ingestedVideo{
			path:     v.Path,
			item:     item,
			metadata: meta,
			timestamps: &record.DatasetItemWebTimestamps{
				TimeBaseNumerator:   v.TimeBase[0],
				TimeBaseDenominator: v.TimeBase[1],
				PTSTimestamps:       nonNil(v.PTS),
				DTSTimestamps:       nonNil(v.DTS),
			},
		})
	}
	return out, nil
}

func (v ManifestVideo) metadata() (*record.DatasetItemMetadata, error) {
	codecType, err := record.ParseVideoCodecType(v.Codec)
	if err != nil {
		return nil, err
	}
	chroma, err := record.ParseVideoChromaFormat(v.Chroma)
	if err != nil {
		return nil, err
	}
	packets, err := hex.DecodeString(v.MetadataPackets)
	if err != nil {
		return nil, errors.Wrap(err, "metadata_packets must be hex")
	}

	m := &record.DatasetItemMetadata{
		Frames:              v.Frames,
		Width:               v.Width,
		Height:              v.Height,
		CodecType:           codecType,
		ChromaFormat:        chroma,
		MetadataPackets:     packets,
		KeyframePositions:   make([]int64, 0, len(v.Keyframes)),
		KeyframeTimestamps:  make([]int64, 0, len(v.Keyframes)),
		KeyframeByteOffsets: make([]int64, 0, len(v.Keyframes)),
	}
	for i, kf := range v.Keyframes {
		if i > 0 && kf.Position <= v.Keyframes[i-1].Position {
			return nil, errors.Newf("keyframe %d: position %d is not after %d", i, kf.Position, v.Keyframes[i-1].Position)
		}
		m.KeyframePositions = append(m.KeyframePositions, kf.Position)
		m.KeyframeTimestamps = append(m.KeyframeTimestamps, kf.Timestamp)
		m.KeyframeByteOffsets = append(m.KeyframeByteOffsets, kf.Offset)
	}
	return m, nil
}

func nonNil(s []int64) []int64 {
	if s == nil {
		return []int64{}
	}
	return s
}
