package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/backup"
	"github.com/aristath/compass/internal/clients/polygon"
	"github.com/aristath/compass/internal/events"
	"github.com/aristath/compass/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch open positions against live prices",
		Long:  "Polls snapshots for open positions on a schedule and raises stop and target alerts. With --once, runs a single check and exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.PolygonAPIKey == "" {
				return fmt.Errorf("no Polygon API key configured (POLYGON_API_KEY)")
			}

			client := polygon.NewClient(a.cfg.PolygonAPIKey, a.cfg.PolygonPlan, a.log)
			bus := events.NewBus(a.log)
			mon := monitor.New(a.journal, client, bus, a.log)

			if once {
				return mon.CheckPositions(cmd.Context())
			}

			if err := mon.Start(); err != nil {
				return err
			}
			defer mon.Stop()

			if a.cfg.BackupBucket != "" {
				go runNightlyBackup(a, cmd)
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run one check and exit")
	return cmd
}

// runNightlyBackup uploads the databases once at startup. The cron loop
// inside the monitor keeps the process alive; backups repeat per restart.
func runNightlyBackup(a *app, cmd *cobra.Command) {
	uploader, err := backup.NewUploader(cmd.Context(), a.cfg.BackupBucket, a.cfg.BackupPrefix,
		a.cfg.AWSRegion, a.cfg.BackupAccessKey, a.cfg.BackupSecretKey, a.log)
	if err != nil {
		a.log.Warn().Err(err).Msg("Backup disabled")
		return
	}
	if err := uploader.BackupFiles(cmd.Context(), a.cfg.MarketDBPath(), a.cfg.UserDBPath()); err != nil {
		a.log.Warn().Err(err).Msg("Backup failed")
	}
}
