package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/clients/exchangerate"
	"github.com/aristath/compass/internal/clients/polygon"
	"github.com/aristath/compass/internal/paper"
	"github.com/aristath/compass/internal/risk"
)

func newPaperCmd() *cobra.Command {
	var checkExits bool

	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Execute the latest plan on paper",
		Long:  "Opens journal positions for the latest plan's signals at current snapshot prices. With --check-exits, also closes positions whose stop or target has been hit.",
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
			rates := exchangerate.NewClient(a.settings, a.log)
			trader := paper.NewTrader(a.journal, client, risk.NewManager(a.log), rates, nil, a.log)

			if checkExits {
				closed, err := trader.CheckExits(cmd.Context())
				if err != nil {
					return err
				}
				a.log.Info().Int("closed", closed).Msg("Exit check complete")
			}

			opened, err := trader.ExecutePlan(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info().Int("opened", opened).Msg("Plan executed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkExits, "check-exits", false, "close positions whose stop or target was hit")
	return cmd
}
