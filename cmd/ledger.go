package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var ledgerYes bool

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset the import ledger",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported source items, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			recs, err := a.ledger.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tTRACK\tTYPE\tCOLLECTION\tIMPORTED")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.SourceItemID, r.TrackID, r.SourceType, r.SourceCollectionID, r.ImportedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var ledgerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every import so items can be imported again",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ledgerYes {
			return errors.New("refusing to reset the ledger without --yes")
		}
		return withApp(cmd.Context(), func(a *app) error {
			n, err := a.ledger.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d ledger entries\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd, ledgerResetCmd)
	ledgerResetCmd.Flags().BoolVar(&ledgerYes, "yes", false, "confirm the reset")
}
