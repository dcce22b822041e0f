package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/clients/polygon"
	"github.com/aristath/compass/internal/ingestion"
)

func newUpdateCmd() *cobra.Command {
	var (
		years     int
		forceFull bool
	)

	cmd := &cobra.Command{
		Use:   "update [symbols...]",
		Short: "Download daily bars for the watchlist",
		Long:  "Fetches missing daily bars from Polygon for every watchlist symbol, or only the symbols given as arguments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.PolygonAPIKey == "" {
				return fmt.Errorf("no Polygon API key configured (POLYGON_API_KEY)")
			}
			if years > 0 {
				a.cfg.HistoricalYears = years
			}

			client := polygon.NewClient(a.cfg.PolygonAPIKey, a.cfg.PolygonPlan, a.log)
			updater := ingestion.NewUpdater(client, a.market, a.cfg.WatchlistPath, a.cfg.HistoricalYears, a.log)

			var symbols []string
			if len(args) > 0 {
				symbols = args
			}

			updated, err := updater.UpdateAll(cmd.Context(), symbols, forceFull)
			if err != nil {
				return err
			}
			a.log.Info().Int("updated", updated).Msg("Done")
			return nil
		},
	}

	cmd.Flags().IntVar(&years, "years", 0, "history depth for new symbols (overrides DSS_HISTORICAL_YEARS)")
	cmd.Flags().BoolVar(&forceFull, "force-full", false, "redownload full history, replacing stored bars")
	return cmd
}
