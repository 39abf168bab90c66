package record

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/codec"
)

// CatalogMetadata is the root persisted object: every dataset, every job
// and the id counters.
type CatalogMetadata struct {
	NextDatasetID int32
	NextJobID     int32
	DatasetNames  map[int32]string
	DatasetJobIDs map[int32]map[int32]struct{}
	JobNames      map[int32]string
}

// NewCatalogMetadata returns an empty catalog.
func NewCatalogMetadata() *CatalogMetadata {
	return &CatalogMetadata{
		DatasetNames:  make(map[int32]string),
		DatasetJobIDs: make(map[int32]map[int32]struct{}),
		JobNames:      make(map[int32]string),
	}
}

// Clone returns a deep copy.
func (m *CatalogMetadata) Clone() *CatalogMetadata {
	out := &CatalogMetadata{
		NextDatasetID: m.NextDatasetID,
		NextJobID:     m.NextJobID,
		DatasetNames:  make(map[int32]string, len(m.DatasetNames)),
		DatasetJobIDs: make(map[int32]map[int32]struct{}, len(m.DatasetJobIDs)),
		JobNames:      make(map[int32]string, len(m.JobNames)),
	}
	for id, name := range m.DatasetNames {
		out.DatasetNames[id] = name
	}
	for id, jobs := range m.DatasetJobIDs {
		set := make(map[int32]struct{}, len(jobs))
		for job := range jobs {
			set[job] = struct{}{}
		}
		out.DatasetJobIDs[id] = set
	}
	for id, name := range m.JobNames {
		out.JobNames[id] = name
	}
	return out
}

// Validate checks the referential invariants. Job names without a dataset
// are allowed: RemoveJob unlinks a job without forgetting its name.
func (m *CatalogMetadata) Validate() error {
	if len(m.DatasetNames) != len(m.DatasetJobIDs) {
		return invalidf(KindCatalogMetadata, "%d dataset names but %d job sets",
			len(m.DatasetNames), len(m.DatasetJobIDs))
	}
	for id, jobs := range m.DatasetJobIDs {
		if _, ok := m.DatasetNames[id]; !ok {
			return invalidf(KindCatalogMetadata, "job set for unknown dataset %d", id)
		}
		for job := range jobs {
			if _, ok := m.JobNames[job]; !ok {
				return invalidf(KindCatalogMetadata, "dataset %d links unknown job %d", id, job)
			}
		}
	}
	for id := range m.DatasetNames {
		if id >= m.NextDatasetID {
			return invalidf(KindCatalogMetadata, "dataset id %d not below next id %d", id, m.NextDatasetID)
		}
	}
	for id := range m.JobNames {
		if id >= m.NextJobID {
			return invalidf(KindCatalogMetadata, "job id %d not below next id %d", id, m.NextJobID)
		}
	}
	return nil
}

// MarshalBinary encodes the catalog. Maps and sets are written in ascending
// id order.
func (m *CatalogMetadata) MarshalBinary() ([]byte, error) {
	if len(m.DatasetNames) != len(m.DatasetJobIDs) {
		return nil, invalidf(KindCatalogMetadata, "%d dataset names but %d job sets",
			len(m.DatasetNames), len(m.DatasetJobIDs))
	}

	enc := codec.NewEncoder(64)
	enc.PutInt32(m.NextDatasetID)
	enc.PutInt32(m.NextJobID)

	enc.PutSize(len(m.DatasetNames))
	for _, id := range codec.SortedKeys(m.DatasetNames) {
		enc.PutInt32(id)
		enc.PutString(m.DatasetNames[id])
	}
	for _, id := range codec.SortedKeys(m.DatasetJobIDs) {
		jobs := m.DatasetJobIDs[id]
		enc.PutInt32(id)
		enc.PutSize(len(jobs))
		for _, job := range codec.SortedKeys(jobs) {
			enc.PutInt32(job)
		}
	}

	enc.PutSize(len(m.JobNames))
	for _, id := range codec.SortedKeys(m.JobNames) {
		enc.PutInt32(id)
		enc.PutString(m.JobNames[id])
	}
	return enc.Bytes(), nil
}

// UnmarshalBinary decodes a catalog that fills data exactly.
func (m *CatalogMetadata) UnmarshalBinary(data []byte) error {
	return unmarshalAll(data, KindCatalogMetadata, func(src codec.Source, pos *uint64) error {
		out, err := DeserializeCatalogMetadata(src, pos)
		if err != nil {
			return err
		}
		*m = *out
		return nil
	})
}

// SerializeCatalogMetadata appends one encoded catalog to w.
func SerializeCatalogMetadata(w Appender, m *CatalogMetadata) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return appendRecord(w, KindCatalogMetadata, data)
}

// DeserializeCatalogMetadata decodes a catalog at *pos.
func DeserializeCatalogMetadata(src codec.Source, pos *uint64) (*CatalogMetadata, error) {
	m := NewCatalogMetadata()
	err := decodeWith(src, pos, KindCatalogMetadata, func(d *codec.Decoder) error {
		var err error
		if m.NextDatasetID, err = d.Int32("next_dataset_id"); err != nil {
			return err
		}
		if m.NextJobID, err = d.Int32("next_job_id"); err != nil {
			return err
		}

		// Each dataset entry is at least id(4) + name length(8)
		numDatasets, err := d.Size("dataset_count", 12)
		if err != nil {
			return err
		}
		for i := 0; i < numDatasets; i++ {
			at := d.Pos()
			id, err := d.Int32("dataset_id")
			if err != nil {
				return err
			}
			name, err := d.String("dataset_name")
			if err != nil {
				return err
			}
			if _, dup := m.DatasetNames[id]; dup {
				return duplicate("dataset_id", at, id)
			}
			m.DatasetNames[id] = name
		}
		for i := 0; i < numDatasets; i++ {
			at := d.Pos()
			id, err := d.Int32("dataset_id")
			if err != nil {
				return err
			}
			if _, dup := m.DatasetJobIDs[id]; dup {
				return duplicate("dataset_id", at, id)
			}
			numJobIDs, err := d.Size("job_id_count", 4)
			if err != nil {
				return err
			}
			jobs := make(map[int32]struct{})
			for j := 0; j < numJobIDs; j++ {
				job, err := d.Int32("job_id")
				if err != nil {
					return err
				}
				jobs[job] = struct{}{}
			}
			m.DatasetJobIDs[id] = jobs
		}

		numJobs, err := d.Size("job_count", 12)
		if err != nil {
			return err
		}
		for i := 0; i < numJobs; i++ {
			at := d.Pos()
			id, err := d.Int32("job_id")
			if err != nil {
				return err
			}
			name, err := d.String("job_name")
			if err != nil {
				return err
			}
			if _, dup := m.JobNames[id]; dup {
				return duplicate("job_id", at, id)
			}
			m.JobNames[id] = name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func duplicate(field string, offset uint64, id int32) error {
	return errors.WithStack(&codec.CorruptDataError{
		Field:  field,
		Offset: offset,
		Reason: "duplicate id " + strconv.Itoa(int(id)),
	})
}
