package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"beatvault/model"
	"beatvault/scheduler"
)

var (
	sourceKind     string
	sourceInactive bool
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Control the recurring import scheduler",
}

var schedulerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted scheduler state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			st, err := a.scheduler.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		})
	},
}

var schedulerActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Arm the scheduler; the first run is one interval from now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			st, err := a.scheduler.Activate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		})
	},
}

var schedulerDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Disarm the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			st, err := a.scheduler.Deactivate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		})
	},
}

var schedulerTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one tick now if the scheduler is due",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			report, err := runTick(cmd.Context(), a)
			if perr := printJSON(cmd, report); perr != nil {
				return perr
			}
			return err
		})
	},
}

var schedulerAddSourceCmd = &cobra.Command{
	Use:   "add-source <url>",
	Short: "Register a channel or playlist for recurring import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			src, err := a.scheduler.AddSource(cmd.Context(), model.SourceConfig{
				Locator: args[0],
				Kind:    sourceKind,
				Active:  !sourceInactive,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, src)
		})
	},
}

var schedulerRemoveSourceCmd = &cobra.Command{
	Use:   "remove-source <id>",
	Short: "Remove a registered source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.scheduler.RemoveSource(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		})
	},
}

var schedulerSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Register every source listed in a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := scheduler.LoadSeedFile(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			added, err := a.scheduler.Seed(cmd.Context(), sources)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d of %d sources\n", added, len(sources))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(
		schedulerStatusCmd,
		schedulerActivateCmd,
		schedulerDeactivateCmd,
		schedulerTickCmd,
		schedulerAddSourceCmd,
		schedulerRemoveSourceCmd,
		schedulerSeedCmd,
	)
	schedulerAddSourceCmd.Flags().StringVar(&sourceKind, "kind", "", "channel or playlist (inferred from the url when empty)")
	schedulerAddSourceCmd.Flags().BoolVar(&sourceInactive, "inactive", false, "register the source paused")
}
