package api

import (
	"github.com/segmentio/ksuid"
	"github.com/ssargent/framedb/pkg/catalog"
	"github.com/ssargent/framedb/pkg/record"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind   string
	Port   int
	APIKey string // Empty disables authentication
}

// CatalogReader is the read side of a catalog served by the inspector.
// *catalog.Catalog implements it.
type CatalogReader interface {
	Datasets() []catalog.Entry
	DatasetID(name string) (int32, error)
	Jobs(datasetID int32) ([]catalog.Entry, error)
	JobID(name string) (int32, error)
	DatasetName(id int32) (string, error)
	DatasetForJob(jobID int32) (int32, error)
	OrphanedJobs() []catalog.Entry
	History() ([]catalog.Snapshot, error)
	Head() ksuid.KSUID
}

// CatalogSummary is the body of GET /catalog
type CatalogSummary struct {
	Snapshot     string          `json:"snapshot,omitempty"`
	Datasets     int             `json:"datasets"`
	Jobs         int             `json:"jobs"`
	OrphanedJobs []catalog.Entry `json:"orphaned_jobs"`
}

// DatasetResponse is the body of GET /datasets/{name}
type DatasetResponse struct {
	ID         int32                     `json:"id"`
	Name       string                    `json:"name"`
	Jobs       []catalog.Entry           `json:"jobs"`
	Descriptor *record.DatasetDescriptor `json:"descriptor,omitempty"`
}

// JobResponse is the body of GET /jobs/{name}
type JobResponse struct {
	ID         int32                 `json:"id"`
	Name       string                `json:"name"`
	Dataset    *catalog.Entry        `json:"dataset,omitempty"`
	Descriptor *record.JobDescriptor `json:"descriptor,omitempty"`
}

// ItemResponse is the body of GET /datasets/{name}/items/{item}. Items
// ingested without a timestamp table omit web_timestamps.
type ItemResponse struct {
	Metadata      *record.DatasetItemMetadata      `json:"metadata"`
	WebTimestamps *record.DatasetItemWebTimestamps `json:"web_timestamps,omitempty"`
}
