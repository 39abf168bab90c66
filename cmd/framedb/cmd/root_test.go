package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/framedb/pkg/config"
	"github.com/ssargent/framedb/pkg/di"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// testCLI runs commands against one in-memory backend shared across runs
type testCLI struct {
	t          *testing.T
	dir        string
	configPath string
	backend    *storage.MemBackend
	container  *di.Container
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	dir := t.TempDir()
	backend := storage.NewMemBackend()
	container := di.NewContainer()
	container.SetBackendFactory(func(cfg *config.Config) (storage.Backend, error) {
		return backend, nil
	})
	SetContainer(container)
	return &testCLI{
		t:          t,
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		backend:    backend,
		container:  container,
	}
}

// run executes one command line and returns what it printed
func (c *testCLI) run(args ...string) (string, error) {
	c.t.Helper()
	root := NewRootCmd()
	var out, stderr bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", c.configPath, "--log-level", "error"}, args...))
	err := execute(context.Background(), root)
	return out.String() + stderr.String(), err
}

func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

// runJSON executes a command with JSON output and decodes it into v
func (c *testCLI) runJSON(v interface{}, args ...string) {
	c.t.Helper()
	root := NewRootCmd()
	var out, stderr bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", c.configPath, "--log-level", "error", "-o", "json"}, args...))
	require.NoError(c.t, execute(context.Background(), root), stderr.String())
	require.NoError(c.t, json.Unmarshal(out.Bytes(), v), out.String())
}

func (c *testCLI) writeManifest(m Manifest) string {
	c.t.Helper()
	data, err := yaml.Marshal(m)
	require.NoError(c.t, err)
	path := filepath.Join(c.dir, "manifest.yaml")
	require.NoError(c.t, os.WriteFile(path, data, 0600))
	return path
}

func sequence(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}

// testManifest describes two videos: a.mp4 (90 frames, keyframes every 30)
// and b.mp4 (30 frames, one keyframe)
func testManifest() Manifest {
	return Manifest{Videos: []ManifestVideo{
		{
			Path: "/videos/a.mp4", Item: "clip0",
			Frames: 90, Width: 1920, Height: 1080,
			Codec: "h264", Chroma: "yuv420",
			MetadataPackets: "000102",
			Keyframes: []ManifestKeyframe{
				{Position: 0, Timestamp: 0, Offset: 0},
				{Position: 30, Timestamp: 1000, Offset: 4096},
				{Position: 60, Timestamp: 2000, Offset: 9000},
			},
			TimeBase: [2]int32{1, 30},
			PTS:      sequence(90),
			DTS:      sequence(90),
		},
		{
			Path: "/videos/b.mp4", Item: "clip1",
			Frames: 30, Width: 640, Height: 480,
			Codec: "hevc", Chroma: "yuv444",
			Keyframes: []ManifestKeyframe{{Position: 0, Timestamp: 0, Offset: 0}},
			TimeBase:  [2]int32{1, 30},
			PTS:       sequence(30),
			DTS:       sequence(30),
		},
	}}
}

func TestNeedsStorage(t *testing.T) {
	root := NewRootCmd()
	root.InitDefaultHelpCmd()
	for _, tc := range []struct {
		args []string
		want bool
	}{
		{[]string{"init"}, false},
		{[]string{"help"}, false},
		{[]string{"dataset", "ls"}, true},
		{[]string{"serve"}, true},
	} {
		cmd, _, err := root.Find(tc.args)
		require.NoError(t, err)
		assert.Equal(t, tc.want, needsStorage(cmd), "%v", tc.args)
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	cli := newTestCLI(t)

	_, err := cli.run("--backend", "tape", "dataset", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage backend "tape"`)

	_, err = cli.run("-o", "xml", "dataset", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
}

func TestRootReportsBackendFailure(t *testing.T) {
	cli := newTestCLI(t)
	cli.container.SetBackendFactory(func(cfg *config.Config) (storage.Backend, error) {
		return nil, errors.New("disk on fire")
	})

	_, err := cli.run("dataset", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open file backend")
	assert.Contains(t, err.Error(), "disk on fire")

	// help never opens storage
	_, err = cli.run("help", "dataset")
	assert.NoError(t, err)
}

func TestRootUsesConfigFile(t *testing.T) {
	cli := newTestCLI(t)
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = config.BackendMemory
	cfg.DataDir = ""
	require.NoError(t, config.SaveConfig(cfg, cli.configPath))

	var seen *config.Config
	cli.container.SetBackendFactory(func(c *config.Config) (storage.Backend, error) {
		seen = c
		return cli.backend, nil
	})

	cli.mustRun("dataset", "ls")
	require.NotNil(t, seen)
	assert.Equal(t, config.BackendMemory, seen.Storage.Backend)
	assert.Equal(t, "error", seen.Logging.Level)

	cli.mustRun("--data-dir", "/srv/framedb", "--backend", "pebble", "dataset", "ls")
	assert.Equal(t, "/srv/framedb", seen.DataDir)
	assert.Equal(t, config.BackendPebble, seen.Storage.Backend)
}

func TestRecoveryNotice(t *testing.T) {
	cli := newTestCLI(t)
	cli.mustRun("dataset", "add", "videos_a")

	// a crash in the middle of a save leaves a partial frame behind
	d := storage.NewDurable(cli.backend, storage.Options{})
	w, err := d.OpenForAppend(record.CatalogMetadataPath)
	require.NoError(t, err)
	require.NoError(t, w.Append([]byte("FDBS\x01\x00")))
	require.NoError(t, w.Close())

	out := cli.mustRun("dataset", "ls")
	assert.Contains(t, out, "Recovered catalog: 6 torn bytes ignored")
	assert.Contains(t, out, "videos_a")
}
