package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/clients/exchangerate"
	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/portfolio"
	"github.com/aristath/compass/internal/regime"
	"github.com/aristath/compass/internal/risk"
	"github.com/aristath/compass/internal/strategies"
)

func newSignalsCmd() *cobra.Command {
	var (
		asOfFlag string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Generate this week's portfolio plan",
		Long:  "Runs regime detection and all strategies over the watchlist, ranks the signals and prints the sized plan. The plan is persisted for the monitor, the paper trader and the UI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			asOf := time.Now().UTC()
			if asOfFlag != "" {
				asOf, err = time.Parse("2006-01-02", asOfFlag)
				if err != nil {
					return fmt.Errorf("%w: invalid --as-of date %q: %v", errUsage, asOfFlag, err)
				}
			}

			symbols, err := a.market.AllSymbols()
			if err != nil {
				return fmt.Errorf("failed to list symbols: %w", err)
			}
			if len(symbols) == 0 {
				return fmt.Errorf("market store is empty, run `dss update` first")
			}

			rate := exchangerate.NewClient(a.settings, a.log).USDToEUR()

			manager := newPortfolioManager(a)
			plan, err := manager.GeneratePlan(symbols, asOf, rate, portfolio.Config{
				CapitalEUR:      a.cfg.Capital,
				RiskEUR:         a.cfg.RiskPerTrade,
				StockAllocation: a.cfg.StockAllocation,
				MaxPositions:    a.cfg.MaxPositions,
				SizingMethod:    a.cfg.SizingMethod,
				Benchmark:       a.cfg.BenchmarkSymbol,
				Extra:           a.cfg.EnableExtraIndicators,
			})
			if err != nil {
				return err
			}

			if err := a.journal.SavePlan(*plan); err != nil {
				a.log.Warn().Err(err).Msg("Failed to persist plan")
			}
			for _, sig := range plan.Signals {
				if err := a.journal.SaveSignal(sig); err != nil {
					a.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Failed to persist signal")
				}
			}

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}

			printPlan(plan, rate)
			return nil
		},
	}

	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "plan date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the plan as JSON")
	return cmd
}

// newPortfolioManager wires the full pipeline against live settings.
func newPortfolioManager(a *app) *portfolio.Manager {
	return portfolio.NewManager(
		a.market,
		regime.NewDetector(a.log),
		[]strategies.Strategy{
			strategies.NewMomentum(a.log),
			strategies.NewMeanReversion(a.log),
			strategies.NewBreakout(a.log),
		},
		risk.NewManager(a.log),
		risk.NewDrawdownProtection(a.settings, a.log),
		a.log,
	)
}

func printPlan(plan *domain.PortfolioPlan, rate float64) {
	fmt.Printf("Plan %s (as of %s)\n", plan.ID, plan.AsOf.Format("2006-01-02"))
	fmt.Printf("Regime: %s (confidence %.0f%%), primary strategy: %s\n",
		plan.Regime.Regime, plan.Regime.Confidence, plan.PrimaryStrategy)
	fmt.Printf("Capital: %.2f EUR (%.2f stock / %.2f cash), risk per trade: %.2f EUR, max positions: %d\n\n",
		plan.Capital, plan.Allocation.Stock, plan.Allocation.Cash, plan.RiskPerTrade, plan.MaxPositions)

	if len(plan.Signals) == 0 {
		fmt.Println("No signals this week.")
		return
	}

	for i, sig := range plan.Signals {
		fmt.Printf("%d. %-6s %-18s entry %8.2f  stop %8.2f  target %8.2f  qty %4d  (%.2f EUR value)\n",
			i+1, sig.Symbol, sig.Strategy, sig.EntryPrice, sig.StopLoss, sig.TargetPrice,
			sig.PositionSize, sig.EntryPrice*float64(sig.PositionSize)*rate)
	}
}
