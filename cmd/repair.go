package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var repairDryRun bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair stored catalog data",
}

var repairMetadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Rewrite stale CDN domains in metadata URLs to CDN_ORIGIN",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if a.repairer == nil {
				return errors.New("CDN_ORIGIN must be set to repair metadata")
			}
			engine := a.repairer
			if repairDryRun {
				engine = engine.Preview()
			}
			sum, err := engine.RepairAllMetadata(cmd.Context())
			if perr := printJSON(cmd, sum); perr != nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.AddCommand(repairMetadataCmd)
	repairMetadataCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "report changes without writing")
}
