/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/record"
)

func newInspectCmd() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Decode and display stored records",
	}
	inspectCmd.AddCommand(
		newInspectDescriptorCmd(),
		newInspectItemCmd(),
		newInspectTimestampsCmd(),
		newInspectJobCmd(),
	)
	return inspectCmd
}

func newInspectDescriptorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "descriptor <dataset>",
		Short: "Show a dataset descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			desc, err := record.ReadDatasetDescriptor(e.durable, args[0])
			if err != nil {
				return err
			}
			if e.output == "json" {
				return outputJSON(cmd.OutOrStdout(), desc)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Videos:\t%d\n", desc.NumVideos())
			fmt.Fprintf(w, "Total frames:\t%d\n", desc.TotalFrames)
			fmt.Fprintf(w, "Frames:\tmin %d\tavg %d\tmax %d\n", desc.MinFrames, desc.AverageFrames, desc.MaxFrames)
			fmt.Fprintf(w, "Width:\tmin %d\tavg %d\tmax %d\n", desc.MinWidth, desc.AverageWidth, desc.MaxWidth)
			fmt.Fprintf(w, "Height:\tmin %d\tavg %d\tmax %d\n", desc.MinHeight, desc.AverageHeight, desc.MaxHeight)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "ITEM\tPATH")
			for i, path := range desc.OriginalVideoPaths {
				item := ""
				if i < len(desc.ItemNames) {
					item = desc.ItemNames[i]
				}
				fmt.Fprintf(w, "%s\t%s\n", item, path)
			}
			return w.Flush()
		},
	}
}

// keyframeOutput is a keyframe seek result
type keyframeOutput struct {
	Frame      int64 `json:"frame"`
	Position   int64 `json:"position"`
	Timestamp  int64 `json:"timestamp"`
	ByteOffset int64 `json:"byte_offset"`
}

func newInspectItemCmd() *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   "item <dataset> <item>",
		Short: "Show the decode metadata of a video",
		Long: `Show the decode metadata of a video. With --frame, show the keyframe a
decoder has to start from to reach that frame.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			meta, err := record.ReadDatasetItemMetadata(e.durable, args[0], args[1])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("frame") {
				frame, _ := cmd.Flags().GetInt64("frame")
				kf, ok := meta.SeekKeyframe(frame)
				if !ok {
					return errors.Newf("no keyframe at or before frame %d", frame)
				}
				out := keyframeOutput{Frame: frame, Position: kf.Position, Timestamp: kf.Timestamp, ByteOffset: kf.ByteOffset}
				if e.output == "json" {
					return outputJSON(cmd.OutOrStdout(), out)
				}
				cmd.Printf("Frame %d: keyframe at position %d, timestamp %d, byte offset %d\n",
					out.Frame, out.Position, out.Timestamp, out.ByteOffset)
				return nil
			}

			if e.output == "json" {
				return outputJSON(cmd.OutOrStdout(), meta)
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Frames:\t%d\n", meta.Frames)
			fmt.Fprintf(w, "Resolution:\t%dx%d\n", meta.Width, meta.Height)
			fmt.Fprintf(w, "Codec:\t%s\n", meta.CodecType)
			fmt.Fprintf(w, "Chroma:\t%s\n", meta.ChromaFormat)
			fmt.Fprintf(w, "Metadata packets:\t%d bytes\n", len(meta.MetadataPackets))
			fmt.Fprintf(w, "Keyframes:\t%d\n", meta.NumKeyframes())
			fmt.Fprintln(w)
			fmt.Fprintln(w, "POSITION\tTIMESTAMP\tOFFSET")
			for i := 0; i < meta.NumKeyframes(); i++ {
				fmt.Fprintf(w, "%d\t%d\t%d\n", meta.KeyframePositions[i], meta.KeyframeTimestamps[i], meta.KeyframeByteOffsets[i])
			}
			return w.Flush()
		},
	}
	itemCmd.Flags().Int64("frame", 0, "Frame to seek to")
	return itemCmd
}

// presentationOutput is the presentation time of one frame
type presentationOutput struct {
	Frame int    `json:"frame"`
	PTS   int64  `json:"pts"`
	DTS   int64  `json:"dts"`
	Time  string `json:"time"`
}

func newInspectTimestampsCmd() *cobra.Command {
	tsCmd := &cobra.Command{
		Use:   "timestamps <dataset> <item>",
		Short: "Show the web timestamps of a video",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			ts, err := record.ReadDatasetItemWebTimestamps(e.durable, args[0], args[1])
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("frame") {
				frame, _ := cmd.Flags().GetInt("frame")
				at, ok := ts.PresentationTime(frame)
				if !ok {
					return errors.Newf("frame %d has no presentation time (%d frames, time base %d/%d)",
						frame, ts.NumFrames(), ts.TimeBaseNumerator, ts.TimeBaseDenominator)
				}
				out := presentationOutput{Frame: frame, PTS: ts.PTSTimestamps[frame], DTS: ts.DTSTimestamps[frame], Time: at.String()}
				if e.output == "json" {
					return outputJSON(cmd.OutOrStdout(), out)
				}
				cmd.Printf("Frame %d: pts %d, dts %d, presented at %s\n", out.Frame, out.PTS, out.DTS, out.Time)
				return nil
			}

			if e.output == "json" {
				return outputJSON(cmd.OutOrStdout(), ts)
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Time base:\t%d/%d\n", ts.TimeBaseNumerator, ts.TimeBaseDenominator)
			fmt.Fprintf(w, "Frames:\t%d\n", ts.NumFrames())
			fmt.Fprintln(w)
			fmt.Fprintln(w, "FRAME\tPTS\tDTS")
			for i := 0; i < ts.NumFrames(); i++ {
				fmt.Fprintf(w, "%d\t%d\t%d\n", i, ts.PTSTimestamps[i], ts.DTSTimestamps[i])
			}
			return w.Flush()
		},
	}
	tsCmd.Flags().Int("frame", 0, "Frame to convert to a presentation time")
	return tsCmd
}

func newInspectJobCmd() *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job <name>",
		Short: "Show a job descriptor",
		Long: `Show a job descriptor. The dataset is looked up in the catalog; an orphaned
job needs --dataset since it is no longer linked to one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			dataset, _ := cmd.Flags().GetString("dataset")
			if dataset == "" {
				if dataset, err = datasetOfJob(e, args[0]); err != nil {
					return err
				}
			}
			job, err := record.ReadJobDescriptor(e.durable, dataset, args[0])
			if err != nil {
				return err
			}
			if e.output == "json" {
				return outputJSON(cmd.OutOrStdout(), job)
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Dataset:\t%s\n", job.DatasetName)
			fmt.Fprintf(w, "Videos:\t%d\n", len(job.Intervals))
			fmt.Fprintf(w, "Frames:\t%d\n", job.FrameCount())
			fmt.Fprintln(w)
			fmt.Fprintln(w, "PATH\tINTERVALS")
			for _, path := range job.Paths() {
				ivs := make([]string, 0, len(job.Intervals[path]))
				for _, iv := range job.Intervals[path] {
					ivs = append(ivs, iv.String())
				}
				fmt.Fprintf(w, "%s\t%s\n", path, strings.Join(ivs, " "))
			}
			return w.Flush()
		},
	}
	jobCmd.Flags().String("dataset", "", "Dataset the job was created on")
	return jobCmd
}

func datasetOfJob(e *env, job string) (string, error) {
	jobID, err := e.catalog.JobID(job)
	if err != nil {
		return "", err
	}
	datasetID, err := e.catalog.DatasetForJob(jobID)
	if err != nil {
		return "", errors.WithHint(err, "pass --dataset for a job that was removed")
	}
	return e.catalog.DatasetName(datasetID)
}
