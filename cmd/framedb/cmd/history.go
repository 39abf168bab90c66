/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/catalog"
)

// historyOutput is the JSON form of the history command
type historyOutput struct {
	Head      string             `json:"head"`
	Snapshots []catalog.Snapshot `json:"snapshots"`
	Recovery  recoveryOutput     `json:"recovery"`
}

type recoveryOutput struct {
	FileSize     uint64 `json:"file_size"`
	Legacy       bool   `json:"legacy"`
	SkippedBytes uint64 `json:"skipped_bytes"`
	TornBytes    uint64 `json:"torn_bytes"`
	RecoveryTime string `json:"recovery_time"`
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the saved catalog snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd)
			if err != nil {
				return err
			}
			snaps, err := e.catalog.History()
			if err != nil {
				return err
			}
			rec := e.catalog.Recovery()
			head := e.catalog.Head()

			if e.output == "json" {
				out := historyOutput{
					Snapshots: snaps,
					Recovery: recoveryOutput{
						FileSize:     rec.FileSize,
						Legacy:       rec.Legacy,
						SkippedBytes: rec.SkippedBytes,
						TornBytes:    rec.TornBytes,
						RecoveryTime: rec.RecoveryTime.String(),
					},
				}
				if !head.IsNil() {
					out.Head = head.String()
				}
				if out.Snapshots == nil {
					out.Snapshots = []catalog.Snapshot{}
				}
				return outputJSON(cmd.OutOrStdout(), out)
			}

			if rec.Legacy {
				cmd.Println("Log starts with an unframed snapshot")
			}
			if len(snaps) == 0 {
				cmd.Println("No snapshots found")
				return nil
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "\tID\tTIME\tOFFSET\tSIZE")
			for _, s := range snaps {
				marker := ""
				if s.ID == head {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", marker, s.ID, s.Time.Format(time.RFC3339), s.Offset, s.Size)
			}
			return w.Flush()
		},
	}
}
