/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
)

// checker collects the problems found while verifying the catalog
type checker struct {
	cmd      *cobra.Command
	e        *env
	problems int
	records  int
}

func (c *checker) problem(format string, args ...interface{}) {
	c.problems++
	c.cmd.Printf("PROBLEM: "+format+"\n", args...)
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the catalog and decode every record",
		Long: `Verify the catalog invariants and decode every record the catalog
references: dataset descriptors, item metadata, web timestamps and job
descriptors. Orphaned jobs are reported but are not problems.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			c := &checker{cmd: cmd, e: e}

			if err := e.catalog.CheckInvariants(); err != nil {
				c.problem("catalog: %v", err)
			}
			for _, ds := range e.catalog.Datasets() {
				c.checkDataset(ds.ID, ds.Name)
			}
			for _, job := range e.catalog.OrphanedJobs() {
				cmd.Printf("NOTE: job %q (id %d) is not linked to a dataset\n", job.Name, job.ID)
			}

			if c.problems > 0 {
				return errors.Newf("found %d problem(s)", c.problems)
			}
			cmd.Printf("OK: %d datasets, %d records decoded\n", len(e.catalog.Datasets()), c.records)
			return nil
		},
	}
}

func (c *checker) checkDataset(id int32, name string) {
	desc, err := record.ReadDatasetDescriptor(c.e.durable, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// registered without a manifest
	case err != nil:
		c.problem("dataset %q: %v", name, err)
	default:
		c.records++
		c.checkItems(name, desc)
	}

	jobs, err := c.e.catalog.Jobs(id)
	if err != nil {
		c.problem("dataset %q: %v", name, err)
		return
	}
	for _, job := range jobs {
		jd, err := record.ReadJobDescriptor(c.e.durable, name, job.Name)
		if err != nil {
			c.problem("job %q: %v", job.Name, err)
			continue
		}
		c.records++
		if jd.DatasetName != name {
			c.problem("job %q: descriptor names dataset %q, catalog links it to %q", job.Name, jd.DatasetName, name)
		}
		if err := jd.Validate(); err != nil {
			c.problem("job %q: %v", job.Name, err)
		}
	}
}

func (c *checker) checkItems(dataset string, desc *record.DatasetDescriptor) {
	if len(desc.ItemNames) != len(desc.OriginalVideoPaths) {
		c.problem("dataset %q: %d item names for %d videos", dataset, len(desc.ItemNames), len(desc.OriginalVideoPaths))
		return
	}
	for i, item := range desc.ItemNames {
		meta, err := record.ReadDatasetItemMetadata(c.e.durable, dataset, item)
		if err != nil {
			c.problem("dataset %q item %q: %v", dataset, item, err)
			continue
		}
		c.records++
		ts, err := record.ReadDatasetItemWebTimestamps(c.e.durable, dataset, item)
		if err != nil {
			c.problem("dataset %q item %q: %v", dataset, item, err)
			continue
		}
		c.records++
		if ts.NumFrames() != int(meta.Frames) {
			c.problem("dataset %q item %q (%s): %d frames but %d timestamps",
				dataset, item, desc.OriginalVideoPaths[i], meta.Frames, ts.NumFrames())
		}
	}
}
