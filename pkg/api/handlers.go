package api

import (
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/ssargent/framedb/pkg/catalog"
	"github.com/ssargent/framedb/pkg/codec"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
)

// Server holds the inspector state. It only reads from the catalog and the
// record store.
type Server struct {
	catalog CatalogReader
	records *storage.Durable
	config  ServerConfig
	metrics *Metrics
	logger  *slog.Logger
}

// NewServer creates a new inspector. records may be nil, in which case
// descriptors are not served.
func NewServer(cat CatalogReader, records *storage.Durable, config ServerConfig, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		catalog: cat,
		records: records,
		config:  config,
		metrics: metrics,
		logger:  logger.With("component", "api"),
	}
	s.updateCatalogStats()
	return s
}

func (s *Server) updateCatalogStats() {
	datasets := s.catalog.Datasets()
	jobs := 0
	for _, ds := range datasets {
		linked, err := s.catalog.Jobs(ds.ID)
		if err == nil {
			jobs += len(linked)
		}
	}
	s.metrics.UpdateCatalogStats(len(datasets), jobs, len(s.catalog.OrphanedJobs()))
}

// sendFailure maps err to a status code and sends it
func (s *Server) sendFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrDatasetNotFound),
		errors.Is(err, catalog.ErrJobNotFound),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, record.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, codec.ErrCorruptData):
		s.logger.Error("corrupt record", "path", r.URL.Path, "error", err)
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	sendError(w, err.Error(), status)
}

// handleHealth reports liveness and the loaded snapshot
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "healthy"}
	if head := s.catalog.Head(); !head.IsNil() {
		body["snapshot"] = head.String()
	}
	sendSuccess(w, body)
}

// handleCatalog summarizes the loaded catalog
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	s.updateCatalogStats()

	datasets := s.catalog.Datasets()
	summary := CatalogSummary{
		Datasets:     len(datasets),
		OrphanedJobs: s.catalog.OrphanedJobs(),
	}
	for _, ds := range datasets {
		jobs, err := s.catalog.Jobs(ds.ID)
		if err != nil {
			s.sendFailure(w, r, err)
			return
		}
		summary.Jobs += len(jobs)
	}
	if summary.OrphanedJobs == nil {
		summary.OrphanedJobs = []catalog.Entry{}
	}
	if head := s.catalog.Head(); !head.IsNil() {
		summary.Snapshot = head.String()
	}
	sendSuccess(w, summary)
}

// handleListDatasets lists every dataset
func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, s.catalog.Datasets())
}

// handleGetDataset returns one dataset with its jobs and descriptor
func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := s.catalog.DatasetID(name)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	jobs, err := s.catalog.Jobs(id)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}

	resp := DatasetResponse{ID: id, Name: name, Jobs: jobs}
	if s.records != nil {
		desc, err := record.ReadDatasetDescriptor(s.records, name)
		switch {
		case err == nil:
			resp.Descriptor = desc
		case !errors.Is(err, storage.ErrNotFound):
			s.sendFailure(w, r, err)
			return
		}
	}
	sendSuccess(w, resp)
}

// handleGetItem returns the metadata and web timestamps of one dataset item
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	item := chi.URLParam(r, "item")
	if !s.requireRecords(w) {
		return
	}
	if _, err := s.catalog.DatasetID(name); err != nil {
		s.sendFailure(w, r, err)
		return
	}
	meta, err := record.ReadDatasetItemMetadata(s.records, name, item)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	resp := ItemResponse{Metadata: meta}

	ts, err := record.ReadDatasetItemWebTimestamps(s.records, name, item)
	switch {
	case err == nil:
		resp.WebTimestamps = ts
	case !errors.Is(err, storage.ErrNotFound):
		s.sendFailure(w, r, err)
		return
	}
	sendSuccess(w, resp)
}

// handleGetJob returns one job with its dataset and descriptor
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id, err := s.catalog.JobID(name)
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	resp := JobResponse{ID: id, Name: name}

	// Jobs removed with RemoveJob keep their name but have no dataset
	dsID, err := s.catalog.DatasetForJob(id)
	if err != nil && !errors.Is(err, catalog.ErrJobNotFound) {
		s.sendFailure(w, r, err)
		return
	}
	if err == nil {
		dsName, err := s.catalog.DatasetName(dsID)
		if err != nil {
			s.sendFailure(w, r, err)
			return
		}
		resp.Dataset = &catalog.Entry{ID: dsID, Name: dsName}

		if s.records != nil {
			desc, err := record.ReadJobDescriptor(s.records, dsName, name)
			switch {
			case err == nil:
				resp.Descriptor = desc
			case !errors.Is(err, storage.ErrNotFound):
				s.sendFailure(w, r, err)
				return
			}
		}
	}
	sendSuccess(w, resp)
}

// handleSnapshots lists the saved catalog snapshots
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.catalog.History()
	if err != nil {
		s.sendFailure(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []catalog.Snapshot{}
	}
	sendSuccess(w, snaps)
}

func (s *Server) requireRecords(w http.ResponseWriter) bool {
	if s.records == nil {
		sendError(w, "record store not configured", http.StatusNotImplemented)
		return false
	}
	return true
}
