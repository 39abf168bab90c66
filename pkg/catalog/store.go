package catalog

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/framedb/pkg/codec"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
)

// ErrDetached is returned by operations that need a snapshot log when the
// catalog was built in memory.
var ErrDetached = errors.New("catalog is not bound to storage")

// RecoveryResult describes what Open found in the snapshot log.
type RecoveryResult struct {
	FileSize       uint64        // Size of the log when it was read
	SnapshotsFound int           // Valid frames in the log
	Legacy         bool          // Log starts with an unframed snapshot
	SkippedBytes   uint64        // Corrupt bytes skipped between valid frames
	TornBytes      uint64        // Incomplete frame at the end of the log
	Snapshot       ksuid.KSUID   // Frame the catalog was loaded from
	RecoveryTime   time.Duration // Time spent reading and decoding
}

// Snapshot describes one saved catalog frame.
type Snapshot struct {
	ID     ksuid.KSUID `json:"id"`
	Time   time.Time   `json:"time"`
	Offset uint64      `json:"offset"`
	Size   int         `json:"size"`
}

// Option configures Open.
type Option func(*Catalog)

// WithLogger sets the logger used for load and save events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger.With("component", "catalog")
		}
	}
}

// Open loads the newest valid snapshot from the log at path. A missing log
// yields an empty catalog. An incomplete frame at the end of the log is
// ignored, and so is a corrupt frame that is followed by valid ones; a corrupt
// final frame is an error matching codec.ErrCorruptData.
func Open(d *storage.Durable, path string, opts ...Option) (*Catalog, error) {
	c := New()
	c.durable = d
	c.path = path
	for _, opt := range opts {
		opt(c)
	}

	start := time.Now()
	data, err := readLog(d, path)
	if err != nil {
		return nil, err
	}

	meta, snaps, res, err := c.scan(data)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		c.meta = meta
	}
	if len(snaps) > 0 {
		c.head = snaps[len(snaps)-1].ID
		res.Snapshot = c.head
	}
	res.RecoveryTime = time.Since(start)
	c.recovery = res

	c.logger.Info("catalog loaded",
		"path", path,
		"snapshot", res.Snapshot,
		"snapshots", res.SnapshotsFound,
		"legacy", res.Legacy,
		"datasets", len(c.meta.DatasetNames),
		"jobs", len(c.meta.JobNames),
		"duration", res.RecoveryTime)
	return c, nil
}

// LoadLegacy decodes an unframed catalog snapshot at *pos.
func LoadLegacy(src codec.Source, pos *uint64) (*Catalog, error) {
	meta, err := record.DeserializeCatalogMetadata(src, pos)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, errors.Mark(err, codec.ErrCorruptData)
	}
	return FromMetadata(meta), nil
}

// Save appends a full snapshot of the catalog to its log.
func (c *Catalog) Save() error {
	if c.durable == nil {
		return ErrDetached
	}
	if err := c.CheckInvariants(); err != nil {
		return errors.Wrap(err, "save catalog")
	}
	payload, err := c.meta.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "save catalog")
	}

	if c.writer == nil {
		w, err := c.durable.OpenForAppend(c.path)
		if err != nil {
			return errors.Wrap(err, "save catalog")
		}
		c.writer = w
	}

	frame := codec.NewFrame(payload)
	offset := c.writer.Size()
	if err := c.writer.Append(frame.Encode()); err != nil {
		return errors.Wrapf(err, "save catalog snapshot %s", frame.ID)
	}
	c.head = frame.ID

	c.logger.Info("catalog saved",
		"path", c.path,
		"snapshot", frame.ID,
		"offset", offset,
		"size", frame.Size(),
		"datasets", len(c.meta.DatasetNames),
		"jobs", len(c.meta.JobNames))
	return nil
}

// History lists every valid snapshot in the log, oldest first.
func (c *Catalog) History() ([]Snapshot, error) {
	if c.durable == nil {
		return nil, ErrDetached
	}
	data, err := readLog(c.durable, c.path)
	if err != nil {
		return nil, err
	}
	_, snaps, _, err := c.scan(data)
	return snaps, err
}

// Head returns the id of the snapshot last loaded or saved.
func (c *Catalog) Head() ksuid.KSUID {
	return c.head
}

// Recovery returns what Open found in the log.
func (c *Catalog) Recovery() RecoveryResult {
	return c.recovery
}

// Path returns the snapshot log path, empty for an in-memory catalog.
func (c *Catalog) Path() string {
	return c.path
}

// Close releases the log handle. The catalog stays usable in memory.
func (c *Catalog) Close() error {
	if c.writer == nil {
		return nil
	}
	err := c.writer.Close()
	c.writer = nil
	return err
}

// readLog returns the whole snapshot log, or nil when it does not exist.
func readLog(d *storage.Durable, path string) ([]byte, error) {
	r, err := d.OpenForRandomRead(path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer r.Close()

	data, err := r.ReadAll(0)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog")
	}
	return data, nil
}

// scan walks the log and decodes the newest valid snapshot.
func (c *Catalog) scan(data []byte) (*record.CatalogMetadata, []Snapshot, RecoveryResult, error) {
	res := RecoveryResult{FileSize: uint64(len(data))}
	src := codec.BytesSource(data)
	magic := []byte(codec.FrameMagic)

	var (
		meta  *record.CatalogMetadata
		snaps []Snapshot
		last  *codec.Frame
		pos   uint64
	)

	if len(data) > 0 && !bytes.HasPrefix(data, magic) {
		legacy, err := LoadLegacy(src, &pos)
		if err != nil {
			// A damaged first frame looks like a legacy snapshot. Resync to
			// the next frame when there is one.
			next := bytes.Index(data, magic)
			if next < 0 {
				return nil, nil, res, errors.Wrap(err, "load legacy catalog")
			}
			pos = uint64(next)
			res.SkippedBytes += pos
			c.logger.Warn("skipping corrupt catalog bytes", "path", c.path, "offset", 0, "bytes", pos, "error", err)
		} else {
			meta = legacy.meta
			res.Legacy = true
		}
	}
	for {
		end, err := codec.ScanFrames(src, pos, func(offset uint64, f *codec.Frame) error {
			last = f
			snaps = append(snaps, Snapshot{ID: f.ID, Time: f.Time(), Offset: offset, Size: f.Size()})
			return nil
		})
		if err == nil {
			break
		}
		next := bytes.Index(data[end+1:], magic)
		if next < 0 {
			if !errors.Is(err, codec.ErrTornFrame) {
				return nil, nil, res, errors.Wrap(err, "load catalog")
			}
			res.TornBytes = uint64(len(data)) - end
			c.logger.Warn("ignoring incomplete snapshot at end of catalog", "path", c.path, "offset", end, "bytes", res.TornBytes)
			break
		}
		pos = end + 1 + uint64(next)
		res.SkippedBytes += pos - end
		c.logger.Warn("skipping corrupt catalog bytes", "path", c.path, "offset", end, "bytes", pos-end, "error", err)
	}
	res.SnapshotsFound = len(snaps)

	if last != nil {
		m := &record.CatalogMetadata{}
		if err := m.UnmarshalBinary(last.Payload); err != nil {
			return nil, nil, res, errors.Wrapf(err, "load catalog snapshot %s", last.ID)
		}
		if err := m.Validate(); err != nil {
			return nil, nil, res, errors.Wrapf(errors.Mark(err, codec.ErrCorruptData), "load catalog snapshot %s", last.ID)
		}
		meta = m
	}
	return meta, snaps, res, nil
}
