package record

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/codec"
)

// Appender receives encoded records. *storage.WriteHandle implements it.
type Appender interface {
	Append(data []byte) error
}

// Entity kinds used in error messages.
const (
	KindCatalogMetadata = "catalog metadata"
	KindDataset         = "dataset descriptor"
	KindItemMetadata    = "dataset item metadata"
	KindWebTimestamps   = "dataset item web timestamps"
	KindJob             = "job descriptor"
)

// ErrInvalidRecord is returned when a record cannot be encoded because its
// parallel sequences disagree or a value is out of range.
var ErrInvalidRecord = errors.New("invalid record")

func invalidf(kind, format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidRecord, "%s: "+format, append([]interface{}{kind}, args...)...)
}

// appendRecord hands one encoded record to w in a single Append.
func appendRecord(w Appender, kind string, data []byte) error {
	if err := w.Append(data); err != nil {
		return errors.Wrapf(err, "write %s", kind)
	}
	return nil
}

// decodeWith runs fn over a decoder positioned at *pos and advances *pos on success.
func decodeWith(src codec.Source, pos *uint64, kind string, fn func(d *codec.Decoder) error) error {
	start := *pos
	d := codec.NewDecoder(src, start)
	if err := fn(d); err != nil {
		return errors.Wrapf(err, "decode %s at offset %d", kind, start)
	}
	*pos = d.Pos()
	return nil
}

// unmarshalAll decodes a whole buffer and rejects trailing bytes.
func unmarshalAll(data []byte, kind string, fn func(src codec.Source, pos *uint64) error) error {
	var pos uint64
	if err := fn(codec.BytesSource(data), &pos); err != nil {
		return err
	}
	if pos != uint64(len(data)) {
		return errors.Wrapf(&codec.CorruptDataError{
			Field:  "trailer",
			Offset: pos,
			Reason: "unexpected trailing bytes",
		}, "decode %s", kind)
	}
	return nil
}
