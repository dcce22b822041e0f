package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/risk"
)

func newProtectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protection",
		Short: "Show drawdown protection status",
		Long:  "Prints the active drawdown restrictions. The monthly stop never lifts on its own; `dss protection reset` clears it after review.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := risk.NewDrawdownProtection(a.settings, a.log).Status()
			if err != nil {
				return err
			}

			fmt.Printf("Risk multiplier: %.2f\n", status.RiskMultiplier)
			if status.MaxPositions > 0 {
				fmt.Printf("Max positions:   %d\n", status.MaxPositions)
			}
			fmt.Printf("Paused:          %v\n", status.IsPaused)
			fmt.Printf("Stopped:         %v\n", status.IsStopped)
			for _, reason := range status.Reasons {
				fmt.Printf("  - %s\n", reason)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear all drawdown protection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := risk.NewDrawdownProtection(a.settings, a.log).Reset(); err != nil {
				return err
			}
			fmt.Println("Drawdown protection cleared.")
			return nil
		},
	})
	return cmd
}
