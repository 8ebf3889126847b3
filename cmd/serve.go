package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"beatvault/logger"
	"beatvault/scheduler"
	"beatvault/server"
)

var serveNoCron bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务和定时导入",
	Long:  `Serve the catalog API and trigger scheduler ticks on TICK_SCHEDULE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withApp(ctx, func(a *app) error {
			if !serveNoCron {
				c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
				if _, err := c.AddFunc(a.cfg.TickSchedule, func() { _, _ = runTick(ctx, a) }); err != nil {
					return err
				}
				c.Start()
				logger.Info("tick trigger started", logger.String("schedule", a.cfg.TickSchedule))
				defer func() { <-c.Stop().Done() }()
			}
			return server.Start(ctx, a.serverDeps(), a.registry)
		})
	},
}

// runTick runs one bounded scheduler tick and records it.
func runTick(parent context.Context, a *app) (scheduler.TickReport, error) {
	ctx, cancel := context.WithTimeout(parent, a.cfg.TickTimeout)
	defer cancel()

	start := time.Now()
	report, err := a.scheduler.Tick(ctx)
	a.metrics.ObserveTick(report, time.Since(start), err)
	switch {
	case err != nil:
		logger.Error("scheduled tick failed", logger.ErrorField(err))
	case report.Ran:
		logger.Info("scheduled tick finished",
			logger.Int("imported", report.Imported),
			logger.Int("failed", report.Failed),
			logger.Int("skipped", report.Skipped))
	default:
		logger.Debug("scheduled tick skipped", logger.String("reason", report.Reason))
	}
	return report, err
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoCron, "no-cron", false, "serve the API without the tick trigger")
}
