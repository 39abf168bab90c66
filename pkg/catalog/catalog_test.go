package catalog

import (
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_RemoveDatasetCascadesToJobs(t *testing.T) {
	c := New()

	a := c.AddDataset("videos_a")
	b := c.AddDataset("videos_b")
	assert.Equal(t, int32(0), a)
	assert.Equal(t, int32(1), b)

	job, err := c.AddJob(a, "job_x")
	require.NoError(t, err)
	assert.Equal(t, int32(0), job)

	require.NoError(t, c.RemoveDataset(a))

	assert.False(t, c.HasJobID(0))
	assert.True(t, c.HasDatasetID(1))
	assert.False(t, c.HasDataset("videos_a"))
	assert.True(t, c.HasDataset("videos_b"))
	require.NoError(t, c.CheckInvariants())
}

func TestCatalog_CascadeLeavesOtherDatasets(t *testing.T) {
	c := New()
	a := c.AddDataset("a")
	b := c.AddDataset("b")
	for _, name := range []string{"a1", "a2", "a3"} {
		_, err := c.AddJob(a, name)
		require.NoError(t, err)
	}
	b1, err := c.AddJob(b, "b1")
	require.NoError(t, err)
	b2, err := c.AddJob(b, "b2")
	require.NoError(t, err)

	before := len(c.meta.JobNames)
	require.NoError(t, c.RemoveDataset(a))

	assert.Equal(t, before-3, len(c.meta.JobNames))
	assert.Equal(t, map[int32]struct{}{b1: {}, b2: {}}, c.meta.DatasetJobIDs[b])
	assert.True(t, c.HasJob("b1"))
	assert.False(t, c.HasJob("a2"))
}

func TestCatalog_RemoveJobKeepsName(t *testing.T) {
	c := New()
	ds := c.AddDataset("ds")
	job, err := c.AddJob(ds, "job")
	require.NoError(t, err)

	c.RemoveJob(job)

	// The job is unlinked but its name survives
	jobs, err := c.Jobs(ds)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.True(t, c.HasJobID(job))
	assert.True(t, c.HasJob("job"))
	assert.Equal(t, []Entry{{ID: job, Name: "job"}}, c.OrphanedJobs())

	_, err = c.DatasetForJob(job)
	assert.True(t, errors.Is(err, ErrJobNotFound))

	// The structural invariants still hold
	require.NoError(t, c.CheckInvariants())

	// Removing twice is harmless
	c.RemoveJob(job)
	c.RemoveJob(999)
	require.NoError(t, c.CheckInvariants())
}

func TestCatalog_IDsNeverReused(t *testing.T) {
	c := New()
	a := c.AddDataset("a")
	j, err := c.AddJob(a, "j")
	require.NoError(t, err)
	require.NoError(t, c.RemoveDataset(a))

	b := c.AddDataset("a")
	assert.Equal(t, a+1, b)
	k, err := c.AddJob(b, "j")
	require.NoError(t, err)
	assert.Equal(t, j+1, k)
}

func TestCatalog_RandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := New()

	var lastDataset, lastJob int32
	for i := 0; i < 2000; i++ {
		datasets := c.Datasets()
		switch op := rng.Intn(4); {
		case op == 0 || len(datasets) == 0:
			c.AddDataset("ds")
		case op == 1:
			require.NoError(t, c.RemoveDataset(datasets[rng.Intn(len(datasets))].ID))
		case op == 2:
			_, err := c.AddJob(datasets[rng.Intn(len(datasets))].ID, "job")
			require.NoError(t, err)
		default:
			if c.meta.NextJobID > 0 {
				c.RemoveJob(rng.Int31n(c.meta.NextJobID))
			}
		}

		require.NoError(t, c.CheckInvariants(), "after operation %d", i)
		assert.Equal(t, len(c.meta.DatasetNames), len(c.meta.DatasetJobIDs))
		assert.GreaterOrEqual(t, c.meta.NextDatasetID, lastDataset)
		assert.GreaterOrEqual(t, c.meta.NextJobID, lastJob)
		lastDataset, lastJob = c.meta.NextDatasetID, c.meta.NextJobID
	}
}

func TestCatalog_Lookups(t *testing.T) {
	c := New()
	ds := c.AddDataset("ds")
	job, err := c.AddJob(ds, "job")
	require.NoError(t, err)

	id, err := c.DatasetID("ds")
	require.NoError(t, err)
	assert.Equal(t, ds, id)

	id, err = c.JobID("job")
	require.NoError(t, err)
	assert.Equal(t, job, id)

	name, err := c.DatasetName(ds)
	require.NoError(t, err)
	assert.Equal(t, "ds", name)

	name, err = c.JobName(job)
	require.NoError(t, err)
	assert.Equal(t, "job", name)

	owner, err := c.DatasetForJob(job)
	require.NoError(t, err)
	assert.Equal(t, ds, owner)
}

func TestCatalog_DuplicateNamesResolveToLowestID(t *testing.T) {
	c := New()
	c.AddDataset("other")
	first := c.AddDataset("same")
	c.AddDataset("same")

	id, err := c.DatasetID("same")
	require.NoError(t, err)
	assert.Equal(t, first, id)
}

func TestCatalog_MissingEntriesAreAssertionFailures(t *testing.T) {
	c := New()
	ds := c.AddDataset("ds")

	testCases := []struct {
		name     string
		call     func() error
		sentinel error
		contains string
	}{
		{
			name:     "remove unknown dataset",
			call:     func() error { return c.RemoveDataset(7) },
			sentinel: ErrDatasetNotFound,
			contains: "dataset id 7",
		},
		{
			name: "add job to unknown dataset",
			call: func() error {
				_, err := c.AddJob(ds+1, "job")
				return err
			},
			sentinel: ErrDatasetNotFound,
			contains: "dataset id 1",
		},
		{
			name: "dataset id by name",
			call: func() error {
				_, err := c.DatasetID("nope")
				return err
			},
			sentinel: ErrDatasetNotFound,
			contains: `"nope"`,
		},
		{
			name: "job id by name",
			call: func() error {
				_, err := c.JobID("nope")
				return err
			},
			sentinel: ErrJobNotFound,
			contains: `"nope"`,
		},
		{
			name: "dataset name by id",
			call: func() error {
				_, err := c.DatasetName(3)
				return err
			},
			sentinel: ErrDatasetNotFound,
			contains: "dataset id 3",
		},
		{
			name: "job name by id",
			call: func() error {
				_, err := c.JobName(4)
				return err
			},
			sentinel: ErrJobNotFound,
			contains: "job id 4",
		},
		{
			name: "jobs of unknown dataset",
			call: func() error {
				_, err := c.Jobs(9)
				return err
			},
			sentinel: ErrDatasetNotFound,
			contains: "dataset id 9",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.sentinel))
			assert.True(t, errors.HasAssertionFailure(err))
			assert.Contains(t, err.Error(), tc.contains)
		})
	}

	// Failed calls leave the catalog untouched
	assert.Equal(t, int32(1), c.meta.NextDatasetID)
	assert.Equal(t, int32(0), c.meta.NextJobID)
}

func TestCatalog_Listings(t *testing.T) {
	c := New()
	b := c.AddDataset("b")
	a := c.AddDataset("a")
	j2, _ := c.AddJob(a, "second")
	j1, _ := c.AddJob(a, "first")
	_, _ = c.AddJob(b, "other")

	assert.Equal(t, []Entry{{ID: b, Name: "b"}, {ID: a, Name: "a"}}, c.Datasets())

	jobs, err := c.Jobs(a)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{ID: j2, Name: "second"}, {ID: j1, Name: "first"}}, jobs)
	assert.Empty(t, c.OrphanedJobs())
}

func TestCatalog_MetadataIsCopy(t *testing.T) {
	c := New()
	ds := c.AddDataset("ds")

	meta := c.Metadata()
	meta.DatasetNames[ds] = "changed"
	delete(meta.DatasetJobIDs, ds)

	name, err := c.DatasetName(ds)
	require.NoError(t, err)
	assert.Equal(t, "ds", name)
	require.NoError(t, c.CheckInvariants())
}
