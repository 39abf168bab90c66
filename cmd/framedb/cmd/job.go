/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/record"
	"github.com/ssargent/framedb/pkg/storage"
)

func newJobCmd() *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Manage processing jobs",
	}
	jobCmd.AddCommand(newJobAddCmd(), newJobRmCmd(), newJobLsCmd())
	return jobCmd
}

func newJobAddCmd() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add <dataset> <name>",
		Short: "Register a job over a dataset",
		Long: `Write a job descriptor and link the job to a dataset. Intervals are given
as path:start:end (half-open frame ranges) or read from a job document.

Examples:
  framedb job add videos_a job_x --interval /videos/a.mp4:0:100 --interval /videos/a.mp4:200:300
  framedb job add videos_a job_y --file job_y.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			dataset, name := args[0], args[1]
			if err := record.ValidateName("job", name); err != nil {
				return err
			}
			datasetID, err := e.catalog.DatasetID(dataset)
			if err != nil {
				return err
			}
			if e.catalog.HasJob(name) {
				return errors.Newf("job %q already exists", name)
			}

			file, _ := cmd.Flags().GetString("file")
			specs, _ := cmd.Flags().GetStringArray("interval")
			job, err := buildJob(dataset, file, specs)
			if err != nil {
				return err
			}
			if err := checkJobPaths(e, dataset, job); err != nil {
				return err
			}

			if err := record.WriteJobDescriptor(e.durable, dataset, name, job); err != nil {
				return err
			}
			id, err := e.catalog.AddJob(datasetID, name)
			if err != nil {
				return err
			}
			if err := e.catalog.Save(); err != nil {
				return err
			}
			cmd.Printf("Added job %q (id %d) on dataset %q: %d videos, %d frames\n",
				name, id, dataset, len(job.Intervals), job.FrameCount())
			return nil
		},
	}
	addCmd.Flags().StringArrayP("interval", "i", nil, "Frame interval as path:start:end (repeatable)")
	addCmd.Flags().StringP("file", "f", "", "Job document (JSON) to read intervals from")
	addCmd.MarkFlagsMutuallyExclusive("interval", "file")
	return addCmd
}

func buildJob(dataset, file string, specs []string) (*record.JobDescriptor, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, "read job document %s", file)
		}
		var job record.JobDescriptor
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, errors.Wrapf(err, "job document %s", file)
		}
		if job.DatasetName != dataset {
			return nil, errors.Newf("job document %s is for dataset %q, not %q", file, job.DatasetName, dataset)
		}
		if err := job.Validate(); err != nil {
			return nil, errors.Wrapf(err, "job document %s", file)
		}
		return &job, nil
	}

	job := record.NewJobDescriptor(dataset)
	for _, spec := range specs {
		path, start, end, err := parseInterval(spec)
		if err != nil {
			return nil, err
		}
		job.AddInterval(path, start, end)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// parseInterval splits path:start:end. The path may itself contain colons.
func parseInterval(spec string) (string, int64, int64, error) {
	endSep := strings.LastIndex(spec, ":")
	if endSep < 0 {
		return "", 0, 0, errors.Newf("interval %q must be path:start:end", spec)
	}
	startSep := strings.LastIndex(spec[:endSep], ":")
	if startSep <= 0 {
		return "", 0, 0, errors.Newf("interval %q must be path:start:end", spec)
	}
	start, err := strconv.ParseInt(spec[startSep+1:endSep], 10, 64)
	if err != nil {
		return "", 0, 0, errors.Wrapf(err, "interval %q start", spec)
	}
	end, err := strconv.ParseInt(spec[endSep+1:], 10, 64)
	if err != nil {
		return "", 0, 0, errors.Wrapf(err, "interval %q end", spec)
	}
	return spec[:startSep], start, end, nil
}

// checkJobPaths rejects videos the dataset descriptor does not list. Datasets
// registered without a manifest have no descriptor and accept any path.
func checkJobPaths(e *env, dataset string, job *record.JobDescriptor) error {
	desc, err := record.ReadDatasetDescriptor(e.durable, dataset)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, path := range job.Paths() {
		if _, ok := desc.ItemName(path); !ok {
			return errors.Newf("video %q is not in dataset %q", path, dataset)
		}
	}
	return nil
}

func newJobRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Unlink a job from its dataset",
		Long: `Unlink a job from its dataset. The job keeps its name in the catalog and
is listed by "job ls --orphaned" afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			id, err := e.catalog.JobID(args[0])
			if err != nil {
				return err
			}
			e.catalog.RemoveJob(id)
			if err := e.catalog.Save(); err != nil {
				return err
			}
			cmd.Printf("Unlinked job %q (id %d); its name stays in the catalog\n", args[0], id)
			return nil
		},
	}
}

// jobRow is a job listing entry with the dataset it belongs to
type jobRow struct {
	ID      int32  `json:"id"`
	Name    string `json:"name"`
	Dataset string `json:"dataset,omitempty"`
}

func newJobLsCmd() *cobra.Command {
	lsCmd := &cobra.Command{
		Use:   "ls [dataset]",
		Short: "List jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			orphaned, _ := cmd.Flags().GetBool("orphaned")
			if orphaned {
				return outputEntries(cmd, e, e.catalog.OrphanedJobs(), "No orphaned jobs")
			}
			if len(args) == 1 {
				id, err := e.catalog.DatasetID(args[0])
				if err != nil {
					return err
				}
				jobs, err := e.catalog.Jobs(id)
				if err != nil {
					return err
				}
				return outputEntries(cmd, e, jobs, "No jobs found")
			}

			var rows []jobRow
			for _, ds := range e.catalog.Datasets() {
				jobs, err := e.catalog.Jobs(ds.ID)
				if err != nil {
					return err
				}
				for _, job := range jobs {
					rows = append(rows, jobRow{ID: job.ID, Name: job.Name, Dataset: ds.Name})
				}
			}
			return outputJobRows(cmd, e, rows)
		},
	}
	lsCmd.Flags().Bool("orphaned", false, "List jobs no longer linked to a dataset")
	return lsCmd
}

func outputJobRows(cmd *cobra.Command, e *env, rows []jobRow) error {
	if e.output == "json" {
		if rows == nil {
			rows = []jobRow{}
		}
		return outputJSON(cmd.OutOrStdout(), rows)
	}
	if len(rows) == 0 {
		cmd.Println("No jobs found")
		return nil
	}
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME\tDATASET")
	for _, row := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.ID, row.Name, row.Dataset)
	}
	return w.Flush()
}
