package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ssargent/framedb/pkg/catalog"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	handler  http.Handler
	registry *prometheus.Registry
	metrics  *Metrics
	backend  *storage.MemBackend
	catalog  *catalog.Catalog
}

// setupTestServer builds an inspector over a saved catalog with one dataset,
// one linked job and one orphaned job.
func setupTestServer(t *testing.T, apiKey string) *testEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := storage.NewMemBackend()
	durable := storage.NewDurable(backend, storage.Options{Logger: logger})

	cat, err := catalog.Open(durable, record.CatalogMetadataPath, catalog.WithLogger(logger))
	require.NoError(t, err)
	ds := cat.AddDataset("videos_a")
	_, err = cat.AddJob(ds, "job_x")
	require.NoError(t, err)
	orphan, err := cat.AddJob(ds, "job_old")
	require.NoError(t, err)
	cat.RemoveJob(orphan)
	require.NoError(t, cat.Save())

	desc := &record.DatasetDescriptor{}
	item := &record.DatasetItemMetadata{
		Frames: 60, Width: 640, Height: 480,
		CodecType:           record.CodecH264,
		MetadataPackets:     []byte{},
		KeyframePositions:   []int64{0, 30},
		KeyframeTimestamps:  []int64{0, 1000},
		KeyframeByteOffsets: []int64{0, 2048},
	}
	desc.AddVideo("/raw/a.mp4", "0", item)
	require.NoError(t, record.WriteDatasetDescriptor(durable, "videos_a", desc))
	require.NoError(t, record.WriteDatasetItemMetadata(durable, "videos_a", "0", item))

	job := record.NewJobDescriptor("videos_a")
	job.AddInterval("/raw/a.mp4", 0, 30)
	require.NoError(t, record.WriteJobDescriptor(durable, "videos_a", "job_x", job))

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	server := NewServer(cat, durable, ServerConfig{APIKey: apiKey}, metrics, logger)

	return &testEnv{
		handler:  NewRouter(server, registry),
		registry: registry,
		metrics:  metrics,
		backend:  backend,
		catalog:  cat,
	}
}

func (e *testEnv) get(t *testing.T, path, apiKey string) (int, APIResponse) {
	req := httptest.NewRequest("GET", path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var response APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return w.Code, response
}

// decodeData re-decodes the generic data field into out
func decodeData(t *testing.T, response APIResponse, out interface{}) {
	raw, err := json.Marshal(response.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t, "")

	code, response := env.get(t, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, response.Success)

	var body map[string]string
	decodeData(t, response, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, env.catalog.Head().String(), body["snapshot"])
}

func TestHandleCatalog(t *testing.T) {
	env := setupTestServer(t, "")

	code, response := env.get(t, "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, code)

	var summary CatalogSummary
	decodeData(t, response, &summary)
	assert.Equal(t, 1, summary.Datasets)
	assert.Equal(t, 1, summary.Jobs)
	require.Len(t, summary.OrphanedJobs, 1)
	assert.Equal(t, "job_old", summary.OrphanedJobs[0].Name)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.catalogOrphanedJobs))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.catalogJobs))
}

func TestHandleDatasets(t *testing.T) {
	env := setupTestServer(t, "")

	code, response := env.get(t, "/api/v1/datasets", "")
	require.Equal(t, http.StatusOK, code)
	var datasets []catalog.Entry
	decodeData(t, response, &datasets)
	assert.Equal(t, []catalog.Entry{{ID: 0, Name: "videos_a"}}, datasets)

	code, response = env.get(t, "/api/v1/datasets/videos_a", "")
	require.Equal(t, http.StatusOK, code)
	var dataset DatasetResponse
	decodeData(t, response, &dataset)
	assert.Equal(t, int32(0), dataset.ID)
	assert.Equal(t, []catalog.Entry{{ID: 0, Name: "job_x"}}, dataset.Jobs)
	require.NotNil(t, dataset.Descriptor)
	assert.Equal(t, []string{"/raw/a.mp4"}, dataset.Descriptor.OriginalVideoPaths)
	assert.Equal(t, int64(60), dataset.Descriptor.TotalFrames)

	code, response = env.get(t, "/api/v1/datasets/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, "missing")
}

func TestHandleItem(t *testing.T) {
	env := setupTestServer(t, "")

	code, response := env.get(t, "/api/v1/datasets/videos_a/items/0", "")
	require.Equal(t, http.StatusOK, code)
	var item ItemResponse
	decodeData(t, response, &item)
	require.NotNil(t, item.Metadata)
	assert.Equal(t, []int64{0, 30}, item.Metadata.KeyframePositions)
	assert.Equal(t, record.CodecH264, item.Metadata.CodecType)
	assert.Nil(t, item.WebTimestamps)

	ts := &record.DatasetItemWebTimestamps{
		TimeBaseNumerator:   1,
		TimeBaseDenominator: 30,
		PTSTimestamps:       []int64{0, 1, 2},
		DTSTimestamps:       []int64{0, 1, 2},
	}
	durable := storage.NewDurable(env.backend, storage.Options{})
	require.NoError(t, record.WriteDatasetItemWebTimestamps(durable, "videos_a", "0", ts))

	code, response = env.get(t, "/api/v1/datasets/videos_a/items/0", "")
	require.Equal(t, http.StatusOK, code)
	item = ItemResponse{}
	decodeData(t, response, &item)
	require.NotNil(t, item.Metadata)
	assert.Equal(t, ts, item.WebTimestamps)

	code, _ = env.get(t, "/api/v1/datasets/videos_a/items/9", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.get(t, "/api/v1/datasets/videos_a/items/..", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandleItem_CorruptTimestamps(t *testing.T) {
	env := setupTestServer(t, "")
	durable := storage.NewDurable(env.backend, storage.Options{})
	require.NoError(t, record.WriteDatasetItemWebTimestamps(durable, "videos_a", "0", &record.DatasetItemWebTimestamps{
		PTSTimestamps: []int64{0, 1},
		DTSTimestamps: []int64{0, 1},
	}))
	path := record.DatasetItemWebTimestampsPath("videos_a", "0")
	full, _ := env.backend.Bytes(path)
	env.backend.Truncate(path, len(full)-4)

	code, response := env.get(t, "/api/v1/datasets/videos_a/items/0", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, response.Error, "corrupt data")
}

func TestHandleItem_Corrupt(t *testing.T) {
	env := setupTestServer(t, "")
	path := record.DatasetItemMetadataPath("videos_a", "0")
	full, _ := env.backend.Bytes(path)
	env.backend.Truncate(path, len(full)-4)

	code, response := env.get(t, "/api/v1/datasets/videos_a/items/0", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, response.Error, "corrupt data")
}

func TestHandleJob(t *testing.T) {
	env := setupTestServer(t, "")

	code, response := env.get(t, "/api/v1/jobs/job_x", "")
	require.Equal(t, http.StatusOK, code)
	var job JobResponse
	decodeData(t, response, &job)
	require.NotNil(t, job.Dataset)
	assert.Equal(t, "videos_a", job.Dataset.Name)
	require.NotNil(t, job.Descriptor)
	assert.Equal(t, []record.Interval{{Start: 0, End: 30}}, job.Descriptor.Intervals["/raw/a.mp4"])

	// Unlinked jobs are still found by name
	code, response = env.get(t, "/api/v1/jobs/job_old", "")
	require.Equal(t, http.StatusOK, code)
	job = JobResponse{}
	decodeData(t, response, &job)
	assert.Nil(t, job.Dataset)
	assert.Nil(t, job.Descriptor)

	code, _ = env.get(t, "/api/v1/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandleSnapshots(t *testing.T) {
	env := setupTestServer(t, "")
	env.catalog.AddDataset("videos_b")
	require.NoError(t, env.catalog.Save())

	code, response := env.get(t, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusOK, code)
	var snaps []catalog.Snapshot
	decodeData(t, response, &snaps)
	require.Len(t, snaps, 2)
	assert.Equal(t, env.catalog.Head(), snaps[1].ID)
}

func TestAuthRequired(t *testing.T) {
	env := setupTestServer(t, "secret")

	code, response := env.get(t, "/api/v1/datasets", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Missing X-API-Key header", response.Error)

	code, _ = env.get(t, "/api/v1/datasets", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.get(t, "/api/v1/datasets", "secret")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t, "secret")
	env.get(t, "/api/v1/health", "secret")
	env.get(t, "/api/v1/health", "wrong")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `framedb_http_requests_total{endpoint="/api/v1/health",method="GET",status_code="200"} 1`)
	assert.Contains(t, body, `framedb_auth_requests_total{status="error"} 1`)
	assert.Contains(t, body, `framedb_auth_requests_total{status="success"} 1`)
	assert.Contains(t, body, "framedb_catalog_datasets 1")
}

func TestStartServer_ShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendSuccess(w, "ok")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServerStarter().StartServer(ctx, handler, ServerConfig{Bind: "127.0.0.1", Port: port})
	}()

	url := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
