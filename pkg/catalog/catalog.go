// Package catalog maintains the index of datasets and jobs and persists it
// as a sequence of snapshot frames.
//
// A Catalog is not safe for concurrent mutation. Callers that share one
// across goroutines must serialize access themselves.
package catalog

import (
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/framedb/pkg/codec"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
)

var (
	// ErrDatasetNotFound is returned for lookups of an unknown dataset.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrJobNotFound is returned for lookups of an unknown job.
	ErrJobNotFound = errors.New("job not found")
)

// notFound flags a failed lookup as a caller contract violation.
func notFound(sentinel error, format string, args ...interface{}) error {
	return errors.WithAssertionFailure(errors.Wrapf(sentinel, format, args...))
}

// Catalog is the in-memory index over datasets and jobs. A catalog returned
// by Open is bound to a snapshot log and can be saved back to it.
type Catalog struct {
	meta *record.CatalogMetadata

	durable  *storage.Durable
	path     string
	logger   *slog.Logger
	writer   *storage.WriteHandle
	head     ksuid.KSUID
	recovery RecoveryResult
}

// New returns an empty catalog.
func New() *Catalog {
	return FromMetadata(nil)
}

// FromMetadata returns a catalog that takes ownership of meta.
func FromMetadata(meta *record.CatalogMetadata) *Catalog {
	if meta == nil {
		meta = record.NewCatalogMetadata()
	}
	return &Catalog{meta: meta, logger: slog.Default().With("component", "catalog")}
}

// Metadata returns a deep copy of the underlying metadata.
func (c *Catalog) Metadata() *record.CatalogMetadata {
	return c.meta.Clone()
}

// AddDataset registers a dataset with no jobs and returns its id. Names are
// not checked for uniqueness; use HasDataset first when that matters.
func (c *Catalog) AddDataset(name string) int32 {
	id := c.meta.NextDatasetID
	c.meta.NextDatasetID++
	c.meta.DatasetNames[id] = name
	c.meta.DatasetJobIDs[id] = make(map[int32]struct{})
	return id
}

// RemoveDataset drops a dataset together with the names of all its jobs.
func (c *Catalog) RemoveDataset(id int32) error {
	jobs, ok := c.meta.DatasetJobIDs[id]
	if !ok {
		return notFound(ErrDatasetNotFound, "dataset id %d", id)
	}
	for job := range jobs {
		delete(c.meta.JobNames, job)
	}
	delete(c.meta.DatasetJobIDs, id)
	delete(c.meta.DatasetNames, id)
	return nil
}

// AddJob registers a job under a dataset and returns the job id.
func (c *Catalog) AddJob(datasetID int32, name string) (int32, error) {
	jobs, ok := c.meta.DatasetJobIDs[datasetID]
	if !ok {
		return 0, notFound(ErrDatasetNotFound, "add job %q: dataset id %d", name, datasetID)
	}
	id := c.meta.NextJobID
	c.meta.NextJobID++
	jobs[id] = struct{}{}
	c.meta.JobNames[id] = name
	return id, nil
}

// RemoveJob unlinks a job from every dataset that lists it. The job name is
// kept, so HasJobID still reports true afterwards; see OrphanedJobs.
func (c *Catalog) RemoveJob(id int32) {
	for _, jobs := range c.meta.DatasetJobIDs {
		delete(jobs, id)
	}
}

// HasDataset reports whether any dataset is called name.
func (c *Catalog) HasDataset(name string) bool {
	_, err := c.DatasetID(name)
	return err == nil
}

// HasDatasetID reports whether id is a registered dataset.
func (c *Catalog) HasDatasetID(id int32) bool {
	_, ok := c.meta.DatasetNames[id]
	return ok
}

// HasJob reports whether any job is called name.
func (c *Catalog) HasJob(name string) bool {
	_, err := c.JobID(name)
	return err == nil
}

// HasJobID reports whether id has a registered job name.
func (c *Catalog) HasJobID(id int32) bool {
	_, ok := c.meta.JobNames[id]
	return ok
}

// DatasetID returns the id of the dataset called name. When names repeat the
// lowest id wins.
func (c *Catalog) DatasetID(name string) (int32, error) {
	if id, ok := lookupName(c.meta.DatasetNames, name); ok {
		return id, nil
	}
	return 0, notFound(ErrDatasetNotFound, "dataset %q", name)
}

// JobID returns the id of the job called name.
func (c *Catalog) JobID(name string) (int32, error) {
	if id, ok := lookupName(c.meta.JobNames, name); ok {
		return id, nil
	}
	return 0, notFound(ErrJobNotFound, "job %q", name)
}

// DatasetName returns the name of dataset id.
func (c *Catalog) DatasetName(id int32) (string, error) {
	name, ok := c.meta.DatasetNames[id]
	if !ok {
		return "", notFound(ErrDatasetNotFound, "dataset id %d", id)
	}
	return name, nil
}

// JobName returns the name of job id.
func (c *Catalog) JobName(id int32) (string, error) {
	name, ok := c.meta.JobNames[id]
	if !ok {
		return "", notFound(ErrJobNotFound, "job id %d", id)
	}
	return name, nil
}

// Entry is one id/name pair.
type Entry struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Datasets lists all datasets ordered by id.
func (c *Catalog) Datasets() []Entry {
	return entries(c.meta.DatasetNames, nil)
}

// Jobs lists the jobs linked to a dataset ordered by id.
func (c *Catalog) Jobs(datasetID int32) ([]Entry, error) {
	jobs, ok := c.meta.DatasetJobIDs[datasetID]
	if !ok {
		return nil, notFound(ErrDatasetNotFound, "dataset id %d", datasetID)
	}
	if len(jobs) == 0 {
		return []Entry{}, nil
	}
	return entries(c.meta.JobNames, jobs), nil
}

// DatasetForJob returns the dataset that links job id.
func (c *Catalog) DatasetForJob(id int32) (int32, error) {
	for _, ds := range codec.SortedKeys(c.meta.DatasetJobIDs) {
		if _, ok := c.meta.DatasetJobIDs[ds][id]; ok {
			return ds, nil
		}
	}
	return 0, notFound(ErrJobNotFound, "job id %d is not linked to a dataset", id)
}

// OrphanedJobs lists jobs that still have a name but are linked from no
// dataset. RemoveJob leaves these behind.
func (c *Catalog) OrphanedJobs() []Entry {
	linked := make(map[int32]struct{})
	for _, jobs := range c.meta.DatasetJobIDs {
		for id := range jobs {
			linked[id] = struct{}{}
		}
	}
	var out []Entry
	for _, e := range entries(c.meta.JobNames, nil) {
		if _, ok := linked[e.ID]; !ok {
			out = append(out, e)
		}
	}
	return out
}

// CheckInvariants verifies the structural invariants of the catalog.
func (c *Catalog) CheckInvariants() error {
	return c.meta.Validate()
}

func lookupName(names map[int32]string, name string) (int32, bool) {
	found := false
	var best int32
	for id, n := range names {
		if n == name && (!found || id < best) {
			best, found = id, true
		}
	}
	return best, found
}

// entries returns the names whose id is in filter (all when filter is nil),
// ordered by id. Ids without a name are skipped.
func entries(names map[int32]string, filter map[int32]struct{}) []Entry {
	out := make([]Entry, 0, len(names))
	for id, name := range names {
		if filter != nil {
			if _, ok := filter[id]; !ok {
				continue
			}
		}
		out = append(out, Entry{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
