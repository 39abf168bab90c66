/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/record"
)

func newDatasetCmd() *cobra.Command {
	datasetCmd := &cobra.Command{
		Use:     "dataset",
		Aliases: []string{"ds"},
		Short:   "Manage datasets",
	}
	datasetCmd.AddCommand(newDatasetAddCmd(), newDatasetRmCmd(), newDatasetLsCmd())
	return datasetCmd
}

func newDatasetAddCmd() *cobra.Command {
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a dataset",
		Long: `Register a dataset in the catalog. With --manifest, the per-video records
(item metadata, web timestamps) and the dataset descriptor are written first;
the dataset is only registered once they are all stored.

Examples:
  framedb dataset add videos_a
  framedb dataset add videos_a --manifest probe.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			name := args[0]
			if err := record.ValidateName("dataset", name); err != nil {
				return err
			}
			if e.catalog.HasDataset(name) {
				return errors.Newf("dataset %q already exists", name)
			}

			manifestPath, _ := cmd.Flags().GetString("manifest")
			videos := 0
			if manifestPath != "" {
				if videos, err = ingestManifest(e, name, manifestPath); err != nil {
					return err
				}
			}

			id := e.catalog.AddDataset(name)
			if err := e.catalog.Save(); err != nil {
				return err
			}
			cmd.Printf("Added dataset %q (id %d, %d videos)\n", name, id, videos)
			return nil
		},
	}
	addCmd.Flags().StringP("manifest", "m", "", "YAML manifest of probed videos")
	return addCmd
}

// ingestManifest writes the records of every video in the manifest and the
// dataset descriptor, and returns the number of videos.
func ingestManifest(e *env, dataset, manifestPath string) (int, error) {
	manifest, err := loadManifest(manifestPath)
	if err != nil {
		return 0, err
	}
	videos, err := manifest.records()
	if err != nil {
		return 0, errors.Wrapf(err, "manifest %s", manifestPath)
	}

	desc := &record.DatasetDescriptor{}
	for _, v := range videos {
		if err := record.WriteDatasetItemMetadata(e.durable, dataset, v.item, v.metadata); err != nil {
			return 0, err
		}
		if err := record.WriteDatasetItemWebTimestamps(e.durable, dataset, v.item, v.timestamps); err != nil {
			return 0, err
		}
		desc.AddVideo(v.path, v.item, v.metadata)
	}
	if err := record.WriteDatasetDescriptor(e.durable, dataset, desc); err != nil {
		return 0, err
	}

	e.logger.Info("dataset ingested", "dataset", dataset, "videos", len(videos), "total_frames", desc.TotalFrames)
	return len(videos), nil
}

func newDatasetRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a dataset and its jobs from the catalog",
		Long: `Remove a dataset from the catalog. Every job linked to it is removed too.
Records already written for the dataset stay in storage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			id, err := e.catalog.DatasetID(args[0])
			if err != nil {
				return err
			}
			jobs, err := e.catalog.Jobs(id)
			if err != nil {
				return err
			}
			if err := e.catalog.RemoveDataset(id); err != nil {
				return err
			}
			if err := e.catalog.Save(); err != nil {
				return err
			}
			cmd.Printf("Removed dataset %q (id %d) and %d job(s)\n", args[0], id, len(jobs))
			return nil
		},
	}
}

func newDatasetLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			return outputEntries(cmd, e, e.catalog.Datasets(), "No datasets found")
		},
	}
}
