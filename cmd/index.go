package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect or rebuild tracks/list.json",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Regenerate the track index from the audio objects in the bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			report, err := a.rebuilder.RebuildIndex(cmd.Context())
			if perr := printJSON(cmd, report); perr != nil {
				return perr
			}
			return err
		})
	},
}

var indexShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current track index and any anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			snap, err := a.index.Read(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range snap.IDs {
				fmt.Fprintln(out, id)
			}
			fmt.Fprintf(out, "\n%d tracks", len(snap.IDs))
			if !snap.Exists {
				fmt.Fprint(out, " (index object missing)")
			}
			if snap.Wrapped {
				fmt.Fprint(out, " (double-encoded)")
			}
			if snap.Dupes > 0 || len(snap.Invalid) > 0 {
				fmt.Fprintf(out, " (%d duplicates, %d invalid entries)", snap.Dupes, len(snap.Invalid))
			}
			fmt.Fprintln(out)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd, indexShowCmd)
}
