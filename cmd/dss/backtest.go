package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/compass/internal/backtest"
	"github.com/aristath/compass/internal/clients/exchangerate"
	"github.com/aristath/compass/internal/portfolio"
	"github.com/aristath/compass/internal/regime"
	"github.com/aristath/compass/internal/risk"
	"github.com/aristath/compass/internal/strategies"
)

func newBacktestCmd() *cobra.Command {
	var (
		years      int
		capital    float64
		slots      int
		exitOnBear bool
		output     string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the weekly workflow over stored history",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			symbols, err := a.market.AllSymbols()
			if err != nil {
				return fmt.Errorf("failed to list symbols: %w", err)
			}
			if len(symbols) == 0 {
				return fmt.Errorf("market store is empty, run `dss update` first")
			}

			rate := exchangerate.NewClient(a.settings, a.log).USDToEUR()

			// The backtest deliberately skips drawdown protection: its
			// streak state belongs to live trading.
			manager := portfolio.NewManager(
				a.market,
				regime.NewDetector(a.log),
				[]strategies.Strategy{
					strategies.NewMomentum(a.log),
					strategies.NewMeanReversion(a.log),
					strategies.NewBreakout(a.log),
				},
				risk.NewManager(a.log),
				risk.Unprotected{},
				a.log,
			)

			end := time.Now().UTC()
			cfg := backtest.Config{
				Symbols:    symbols,
				Start:      end.AddDate(-years, 0, 0),
				End:        end,
				CapitalEUR: capital,
				Slots:      slots,
				Benchmark:  a.cfg.BenchmarkSymbol,
				Rate:       rate,
				ExitOnBear: exitOnBear,
			}

			sim := backtest.NewSimulator(a.market, manager, risk.NewManager(a.log), a.log)
			result, err := sim.Run(cfg)
			if err != nil {
				return err
			}

			if output == "" {
				output = filepath.Join(a.cfg.DataDir, fmt.Sprintf("backtest_%s.json", end.Format("2006-01-02")))
			}
			if err := backtest.SaveJSON(result, output); err != nil {
				a.log.Warn().Err(err).Msg("Failed to save results")
			} else {
				a.log.Info().Str("path", output).Msg("Results saved")
			}

			backtest.WriteReport(os.Stdout, result)
			return nil
		},
	}

	cmd.Flags().IntVar(&years, "years", 3, "how far back to simulate")
	cmd.Flags().Float64Var(&capital, "capital", 10000, "starting capital in EUR")
	cmd.Flags().IntVar(&slots, "slots", 5, "maximum concurrent positions")
	cmd.Flags().BoolVar(&exitOnBear, "exit-on-bear", false, "liquidate everything when the benchmark turns bearish")
	cmd.Flags().StringVar(&output, "output", "", "results JSON path (default <data-dir>/backtest_<date>.json)")
	return cmd
}
