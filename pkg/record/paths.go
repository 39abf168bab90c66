package record

import (
	"path"
	"strings"

	"github.com/cockroachdb/errors"
)

// CatalogMetadataPath is where catalog snapshots are appended.
const CatalogMetadataPath = "db_metadata.bin"

// ErrInvalidName is returned for dataset, item and job names that cannot be
// used as a single path element.
var ErrInvalidName = errors.New("invalid name")

// ValidateName checks that name maps to exactly one path element, so that
// records of different datasets, items or jobs never share a location.
func ValidateName(kind, name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.Wrapf(ErrInvalidName, "%s name %q", kind, name)
	case strings.ContainsAny(name, "/\\"), path.Clean(name) != name:
		return errors.WithHint(
			errors.Wrapf(ErrInvalidName, "%s name %q", kind, name),
			"names may not contain path separators")
	}
	return nil
}

// DatasetDescriptorPath returns the descriptor location of a dataset.
func DatasetDescriptorPath(dataset string) string {
	return path.Join("datasets", dataset, "descriptor.bin")
}

// DatasetItemMetadataPath returns the metadata location of one item.
func DatasetItemMetadataPath(dataset, item string) string {
	return path.Join("datasets", dataset, "items", item, "metadata.bin")
}

// DatasetItemWebTimestampsPath returns the web timestamp table location of one item.
func DatasetItemWebTimestampsPath(dataset, item string) string {
	return path.Join("datasets", dataset, "items", item, "web_timestamps.bin")
}

// JobDescriptorPath returns the descriptor location of a job.
func JobDescriptorPath(dataset, job string) string {
	return path.Join("jobs", dataset, job, "descriptor.json")
}
