package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/catalog"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		spec       string
		path       string
		start, end int64
		wantErr    bool
	}{
		{spec: "/videos/a.mp4:0:100", path: "/videos/a.mp4", start: 0, end: 100},
		{spec: "C:/videos/a.mp4:5:6", path: "C:/videos/a.mp4", start: 5, end: 6},
		{spec: "a:10:5", path: "a", start: 10, end: 5},
		{spec: "a.mp4", wantErr: true},
		{spec: "a.mp4:1", wantErr: true},
		{spec: ":1:2", wantErr: true},
		{spec: "a.mp4:x:2", wantErr: true},
		{spec: "a.mp4:1:y", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			path, start, end, err := parseInterval(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	cli := newTestCLI(t)
	cli.mustRun("dataset", "add", "videos_a", "--manifest", cli.writeManifest(testManifest()))
	cli.mustRun("dataset", "add", "videos_b")

	out := cli.mustRun("job", "add", "videos_a", "job_x",
		"-i", "/videos/a.mp4:0:30", "-i", "/videos/a.mp4:60:90", "-i", "/videos/b.mp4:0:10")
	assert.Contains(t, out, `Added job "job_x" (id 0) on dataset "videos_a": 2 videos, 70 frames`)
	cli.mustRun("job", "add", "videos_b", "job_y", "-i", "/anything.mp4:0:1")

	job, err := record.ReadJobDescriptor(storage.NewDurable(cli.backend, storage.Options{}), "videos_a", "job_x")
	require.NoError(t, err)
	assert.Equal(t, "videos_a", job.DatasetName)
	assert.Equal(t, []record.Interval{{Start: 0, End: 30}, {Start: 60, End: 90}}, job.Intervals["/videos/a.mp4"])

	var rows []jobRow
	cli.runJSON(&rows, "job", "ls")
	assert.Equal(t, []jobRow{
		{ID: 0, Name: "job_x", Dataset: "videos_a"},
		{ID: 1, Name: "job_y", Dataset: "videos_b"},
	}, rows)

	var entries []catalog.Entry
	cli.runJSON(&entries, "job", "ls", "videos_b")
	assert.Equal(t, []catalog.Entry{{ID: 1, Name: "job_y"}}, entries)

	out = cli.mustRun("job", "rm", "job_x")
	assert.Contains(t, out, `Unlinked job "job_x" (id 0); its name stays in the catalog`)

	cli.runJSON(&entries, "job", "ls", "videos_a")
	assert.Empty(t, entries)
	cli.runJSON(&entries, "job", "ls", "--orphaned")
	assert.Equal(t, []catalog.Entry{{ID: 0, Name: "job_x"}}, entries)

	// the name is still taken
	_, err = cli.run("job", "add", "videos_a", "job_x", "-i", "/videos/a.mp4:0:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `job "job_x" already exists`)

	out = cli.mustRun("job", "ls")
	assert.Contains(t, out, "ID  NAME   DATASET")
	assert.Contains(t, out, "1   job_y  videos_b")
	assert.NotContains(t, out, "job_x")
}

func TestJobAddFromFile(t *testing.T) {
	cli := newTestCLI(t)
	cli.mustRun("dataset", "add", "videos_a", "--manifest", cli.writeManifest(testManifest()))

	doc := filepath.Join(cli.dir, "job.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{
		"dataset_name": "videos_a",
		"videos": [{"path": "/videos/b.mp4", "intervals": [[0, 10], [20, 30]]}]
	}`), 0600))

	out := cli.mustRun("job", "add", "videos_a", "job_f", "--file", doc)
	assert.Contains(t, out, "1 videos, 20 frames")

	require.NoError(t, os.WriteFile(doc, []byte(`{"dataset_name": "videos_b", "videos": []}`), 0600))
	_, err := cli.run("job", "add", "videos_a", "job_g", "--file", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `is for dataset "videos_b", not "videos_a"`)

	require.NoError(t, os.WriteFile(doc, []byte(`{"videos": []}`), 0600))
	_, err = cli.run("job", "add", "videos_a", "job_g", "--file", doc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, record.ErrMissingField))

	_, err = cli.run("job", "add", "videos_a", "job_g", "--file", doc, "-i", "/videos/a.mp4:0:1")
	require.Error(t, err)
}

func TestJobAddRejects(t *testing.T) {
	cli := newTestCLI(t)
	cli.mustRun("dataset", "add", "videos_a", "--manifest", cli.writeManifest(testManifest()))

	_, err := cli.run("job", "add", "videos_z", "job_x", "-i", "/videos/a.mp4:0:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrDatasetNotFound))

	_, err = cli.run("job", "add", "videos_a", "job_x", "-i", "/videos/c.mp4:0:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `video "/videos/c.mp4" is not in dataset "videos_a"`)

	_, err = cli.run("job", "add", "videos_a", "job_x", "-i", "/videos/a.mp4:10:5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[10, 5)")

	_, err = cli.run("job", "add", "videos_a", "job_x", "-i", "nonsense")
	require.Error(t, err)

	_, err = cli.run("job", "add", "videos_a", "../job_x", "-i", "/videos/a.mp4:0:1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, record.ErrInvalidName))

	// nothing was registered or written
	var rows []jobRow
	cli.runJSON(&rows, "job", "ls")
	assert.Empty(t, rows)
	_, ok := cli.backend.Bytes(record.JobDescriptorPath("videos_a", "job_x"))
	assert.False(t, ok)
}

func TestJobRmMissing(t *testing.T) {
	cli := newTestCLI(t)

	_, err := cli.run("job", "rm", "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrJobNotFound))
}
