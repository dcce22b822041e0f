package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// SaveJSON writes the full result to a file.
func SaveJSON(result *Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backtest result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write backtest result: %w", err)
	}
	return nil
}

// WriteReport renders a human-readable summary.
func WriteReport(w io.Writer, result *Result) {
	m := result.Metrics

	fmt.Fprintf(w, "Backtest %s to %s\n",
		result.Config.Start.Format("2006-01-02"), result.Config.End.Format("2006-01-02"))
	fmt.Fprintf(w, "Weeks planned: %d, skipped: %d\n\n", result.WeeksPlanned, result.WeeksSkipped)

	fmt.Fprintf(w, "Capital:       %10.2f -> %10.2f EUR\n", m.StartCapital, m.EndCapital)
	fmt.Fprintf(w, "Total P&L:     %10.2f EUR\n", m.TotalPnLEUR)
	fmt.Fprintf(w, "CAGR:          %9.2f%%\n", m.CAGR*100)
	fmt.Fprintf(w, "Max drawdown:  %9.2f%%\n", m.MaxDrawdownPct)
	fmt.Fprintf(w, "Sharpe:        %10.2f\n\n", m.Sharpe)

	fmt.Fprintf(w, "Trades: %d  (W %d / L %d, win rate %.1f%%)\n", m.TotalTrades, m.Wins, m.Losses, m.WinRate)
	fmt.Fprintf(w, "Profit factor: %.2f   Avg R: %.2f\n", m.ProfitFactor, m.AvgRMultiple)

	writeBreakdown(w, "By strategy", m.ByStrategy)
	writeBreakdown(w, "By regime", m.ByRegime)
	writeBreakdown(w, "By exit reason", m.ByExitReason)
}

func writeBreakdown(w io.Writer, title string, groups map[string]BreakdownStats) {
	if len(groups) == 0 {
		return
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		g := groups[k]
		fmt.Fprintf(w, "  %-20s %4d trades  %6.1f%% win  %9.2f EUR  avg R %.2f\n",
			k, g.Trades, g.WinRate, g.PnLEUR, g.AvgR)
	}
}
