package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/compass/internal/domain"
)

// profitFactorFloor keeps the ratio finite when there are no losses.
const profitFactorFloor = 1e-9

// BreakdownStats aggregates outcomes for one group.
type BreakdownStats struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	PnLEUR  float64 `json:"pnl_eur"`
	AvgR    float64 `json:"avg_r"`
	WinRate float64 `json:"win_rate"`
}

// Metrics summarizes a simulation.
type Metrics struct {
	TotalTrades    int     `json:"total_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgRMultiple   float64 `json:"avg_r_multiple"`
	Sharpe         float64 `json:"sharpe"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	CAGR           float64 `json:"cagr"`
	TotalPnLEUR    float64 `json:"total_pnl_eur"`
	StartCapital   float64 `json:"start_capital"`
	EndCapital     float64 `json:"end_capital"`

	ByStrategy   map[string]BreakdownStats `json:"by_strategy"`
	ByRegime     map[string]BreakdownStats `json:"by_regime"`
	ByExitReason map[string]BreakdownStats `json:"by_exit_reason"`
}

// ComputeMetrics derives the summary statistics from the trade outcomes
// and the weekly equity curve.
func ComputeMetrics(outcomes []domain.TradeOutcome, curve []EquityPoint, cfg Config) Metrics {
	m := Metrics{
		TotalTrades:  len(outcomes),
		StartCapital: cfg.CapitalEUR,
		EndCapital:   cfg.CapitalEUR,
		ByStrategy:   make(map[string]BreakdownStats),
		ByRegime:     make(map[string]BreakdownStats),
		ByExitReason: make(map[string]BreakdownStats),
	}
	if len(curve) > 0 {
		m.EndCapital = curve[len(curve)-1].EquityEUR
	}

	grossProfit, grossLoss, sumR := 0.0, 0.0, 0.0
	for _, o := range outcomes {
		m.TotalPnLEUR += o.PnLEUR
		sumR += o.RMultiple
		if o.PnLEUR > 0 {
			m.Wins++
			grossProfit += o.PnLEUR
		} else {
			m.Losses++
			grossLoss += -o.PnLEUR
		}

		accumulate(m.ByStrategy, o.Strategy, o)
		accumulate(m.ByRegime, o.Regime, o)
		accumulate(m.ByExitReason, o.ExitReason, o)
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades) * 100
		m.AvgRMultiple = sumR / float64(m.TotalTrades)
		m.ProfitFactor = grossProfit / math.Max(grossLoss, profitFactorFloor)
	}

	finalize(m.ByStrategy)
	finalize(m.ByRegime)
	finalize(m.ByExitReason)

	m.Sharpe = weeklySharpe(curve)
	m.MaxDrawdownPct = maxDrawdown(curve)
	m.CAGR = cagr(curve, cfg.CapitalEUR)
	return m
}

func accumulate(groups map[string]BreakdownStats, key string, o domain.TradeOutcome) {
	g := groups[key]
	g.Trades++
	g.PnLEUR += o.PnLEUR
	g.AvgR += o.RMultiple
	if o.PnLEUR > 0 {
		g.Wins++
	}
	groups[key] = g
}

func finalize(groups map[string]BreakdownStats) {
	for key, g := range groups {
		if g.Trades > 0 {
			g.AvgR /= float64(g.Trades)
			g.WinRate = float64(g.Wins) / float64(g.Trades) * 100
		}
		groups[key] = g
	}
}

// weeklySharpe annualizes the mean over standard deviation of weekly
// returns.
func weeklySharpe(curve []EquityPoint) float64 {
	if len(curve) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].EquityEUR
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].EquityEUR-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(52)
}

// maxDrawdown is the largest peak-to-trough decline of the equity curve,
// in percent.
func maxDrawdown(curve []EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for _, p := range curve {
		if p.EquityEUR > peak {
			peak = p.EquityEUR
		}
		if peak > 0 {
			dd := (peak - p.EquityEUR) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// cagr is the compound annual growth rate over the simulated span.
func cagr(curve []EquityPoint, startCapital float64) float64 {
	if len(curve) < 2 || startCapital <= 0 {
		return 0
	}
	end := curve[len(curve)-1].EquityEUR
	if end <= 0 {
		return -1
	}

	years := curve[len(curve)-1].Date.Sub(curve[0].Date).Hours() / 24 / 365.25
	if years <= 0 {
		return 0
	}
	return math.Pow(end/startCapital, 1/years) - 1
}
