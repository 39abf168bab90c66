package record

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/codec"
	"github.com/ssargent/framedb/pkg/storage"
)

// ErrRecordExists is returned when writing a record to a path that already
// holds data. Record files are written once.
var ErrRecordExists = errors.New("record already exists")

func writeRecord(d *storage.Durable, path string, serialize func(w Appender) error) error {
	w, err := d.OpenForAppend(path)
	if err != nil {
		return err
	}
	defer w.Close()

	if w.Size() != 0 {
		return errors.Wrapf(ErrRecordExists, "%s", path)
	}
	return serialize(w)
}

func readRecord[T any](d *storage.Durable, path string, deserialize func(src codec.Source, pos *uint64) (T, error)) (T, error) {
	var zero T
	r, err := d.OpenForRandomRead(path)
	if err != nil {
		return zero, err
	}
	defer r.Close()

	var pos uint64
	out, err := deserialize(r, &pos)
	if err != nil {
		return zero, errors.Wrapf(err, "%s", path)
	}
	return out, nil
}

func validateItem(dataset, item string) error {
	if err := ValidateName("dataset", dataset); err != nil {
		return err
	}
	return ValidateName("item", item)
}

func validateJob(dataset, job string) error {
	if err := ValidateName("dataset", dataset); err != nil {
		return err
	}
	return ValidateName("job", job)
}

// WriteDatasetDescriptor stores the descriptor of dataset.
func WriteDatasetDescriptor(d *storage.Durable, dataset string, desc *DatasetDescriptor) error {
	if err := ValidateName("dataset", dataset); err != nil {
		return err
	}
	return writeRecord(d, DatasetDescriptorPath(dataset), func(w Appender) error {
		return SerializeDatasetDescriptor(w, desc)
	})
}

// ReadDatasetDescriptor loads the descriptor of dataset.
func ReadDatasetDescriptor(d *storage.Durable, dataset string) (*DatasetDescriptor, error) {
	if err := ValidateName("dataset", dataset); err != nil {
		return nil, err
	}
	return readRecord(d, DatasetDescriptorPath(dataset), DeserializeDatasetDescriptor)
}

// WriteDatasetItemMetadata stores the metadata of one item.
func WriteDatasetItemMetadata(d *storage.Durable, dataset, item string, m *DatasetItemMetadata) error {
	if err := validateItem(dataset, item); err != nil {
		return err
	}
	return writeRecord(d, DatasetItemMetadataPath(dataset, item), func(w Appender) error {
		return SerializeDatasetItemMetadata(w, m)
	})
}

// ReadDatasetItemMetadata loads the metadata of one item.
func ReadDatasetItemMetadata(d *storage.Durable, dataset, item string) (*DatasetItemMetadata, error) {
	if err := validateItem(dataset, item); err != nil {
		return nil, err
	}
	return readRecord(d, DatasetItemMetadataPath(dataset, item), DeserializeDatasetItemMetadata)
}

// WriteDatasetItemWebTimestamps stores the web timestamps of one item.
func WriteDatasetItemWebTimestamps(d *storage.Durable, dataset, item string, ts *DatasetItemWebTimestamps) error {
	if err := validateItem(dataset, item); err != nil {
		return err
	}
	return writeRecord(d, DatasetItemWebTimestampsPath(dataset, item), func(w Appender) error {
		return SerializeDatasetItemWebTimestamps(w, ts)
	})
}

// ReadDatasetItemWebTimestamps loads the web timestamps of one item.
func ReadDatasetItemWebTimestamps(d *storage.Durable, dataset, item string) (*DatasetItemWebTimestamps, error) {
	if err := validateItem(dataset, item); err != nil {
		return nil, err
	}
	return readRecord(d, DatasetItemWebTimestampsPath(dataset, item), DeserializeDatasetItemWebTimestamps)
}

// WriteJobDescriptor stores the descriptor of job under dataset.
func WriteJobDescriptor(d *storage.Durable, dataset, job string, j *JobDescriptor) error {
	if err := validateJob(dataset, job); err != nil {
		return err
	}
	return writeRecord(d, JobDescriptorPath(dataset, job), func(w Appender) error {
		return SerializeJobDescriptor(w, j)
	})
}

// ReadJobDescriptor loads the descriptor of job under dataset.
func ReadJobDescriptor(d *storage.Durable, dataset, job string) (*JobDescriptor, error) {
	if err := validateJob(dataset, job); err != nil {
		return nil, err
	}
	return readRecord(d, JobDescriptorPath(dataset, job), DeserializeJobDescriptor)
}
