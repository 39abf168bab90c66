package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/ssargent/framedb/pkg/catalog"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// outputJSON writes v as indented JSON
func outputJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// outputEntries displays catalog entries in the selected format
func outputEntries(cmd *cobra.Command, e *env, entries []catalog.Entry, empty string) error {
	if e.output == "json" {
		return outputJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		cmd.Println(empty)
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tNAME")
	for _, entry := range entries {
		fmt.Fprintf(w, "%d\t%s\n", entry.ID, entry.Name)
	}
	return w.Flush()
}
