package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"beatvault/ingest"
	"beatvault/model"
)

var (
	importMax  int
	importKind string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import tracks from the video platform",
}

var importOneCmd = &cobra.Command{
	Use:   "one <url>",
	Short: "Import a single video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			track, err := a.pipeline.ImportOne(cmd.Context(), args[0], ingest.Collection{})
			if err != nil {
				return err
			}
			return printJSON(cmd, track)
		})
	},
}

var importCollectionCmd = &cobra.Command{
	Use:   "collection <url>",
	Short: "Import the newest items of a channel or playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch importKind {
		case model.SourceChannel, model.SourcePlaylist:
		default:
			return fmt.Errorf("--kind must be %s or %s", model.SourceChannel, model.SourcePlaylist)
		}
		return withApp(cmd.Context(), func(a *app) error {
			limit := importMax
			if limit <= 0 {
				limit = a.cfg.CollectionMax
			}
			res, err := a.pipeline.ImportFromCollection(cmd.Context(), ingest.Collection{Locator: args[0], Kind: importKind}, limit)
			if perr := printJSON(cmd, res); perr != nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importOneCmd, importCollectionCmd)
	importCollectionCmd.Flags().IntVarP(&importMax, "max", "n", 0, "maximum items to list (defaults to COLLECTION_MAX)")
	importCollectionCmd.Flags().StringVar(&importKind, "kind", model.SourceChannel, "channel or playlist")
}
