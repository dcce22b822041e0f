package strategies

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
)

// Momentum parameters.
const (
	momentumSMAPeriod = 100
	momentumLookback  = 450 // calendar days, enough for SMA100 plus the return window
	returnWindowBars  = 63  // ~3 trading months
	minOutperformance = -0.03
)

// Momentum buys strength: price above its 100-day average and a 3-month
// return keeping pace with the benchmark (within 3 points of it).
type Momentum struct {
	log zerolog.Logger
}

// NewMomentum creates the momentum strategy.
func NewMomentum(log zerolog.Logger) *Momentum {
	return &Momentum{log: log.With().Str("strategy", domain.StrategyMomentum).Logger()}
}

// Name implements Strategy.
func (m *Momentum) Name() string { return domain.StrategyMomentum }

// LookbackDays implements Strategy.
func (m *Momentum) LookbackDays() int { return momentumLookback }

// Evaluate implements Strategy.
func (m *Momentum) Evaluate(s *indicators.Series, ctx Context) *domain.Signal {
	if s.Len() < momentumSMAPeriod+10 {
		return nil
	}

	last := s.LastBar()

	dollarVolume := last.Close * last.Volume
	if dollarVolume < MinDollarVolume {
		m.log.Debug().Str("symbol", s.Symbol).Float64("dollar_volume", dollarVolume).Msg("Low liquidity")
		return nil
	}

	sma100 := s.Last(indicators.ColSMA100)
	if math.IsNaN(sma100) || last.Close <= sma100 {
		m.log.Debug().Str("symbol", s.Symbol).Msg("Below SMA100")
		return nil
	}

	return3m, ok := trailingReturn(s.Closes(), returnWindowBars)
	if !ok {
		return nil
	}

	benchmarkReturn := 0.0
	if ctx.Benchmark != nil {
		if br, ok := trailingReturn(ctx.Benchmark.Closes(), returnWindowBars); ok {
			benchmarkReturn = br
		}
	}
	if return3m < benchmarkReturn+minOutperformance {
		m.log.Debug().
			Str("symbol", s.Symbol).
			Float64("return_3m", return3m).
			Float64("benchmark", benchmarkReturn).
			Msg("Underperforming benchmark")
		return nil
	}

	sig := buildSignal(domain.StrategyMomentum, s, ctx)
	if sig == nil {
		return nil
	}

	sig.FiltersPassed["liquidity"] = fmt.Sprintf("$%.0f", dollarVolume)
	sig.FiltersPassed["trend"] = fmt.Sprintf("Price $%.2f > SMA%d $%.2f", last.Close, momentumSMAPeriod, sma100)
	sig.FiltersPassed["momentum"] = fmt.Sprintf("3m return %.1f%% vs benchmark %.1f%%", return3m*100, benchmarkReturn*100)

	sig.Metrics["return_3m"] = return3m
	sig.Metrics["sma_trend"] = sma100
	sig.Metrics["dollar_volume"] = dollarVolume
	sig.Metrics["natr"] = indicators.Coalesce(s.Last(indicators.ColNATR), 3.0)
	sig.Metrics["atr_stop_pct"] = atrStopPercent(sig.EntryPrice, sig.StopLoss)
	return sig
}

// trailingReturn computes the simple return over the past n bars.
func trailingReturn(closes []float64, n int) (float64, bool) {
	if len(closes) <= n {
		return 0, false
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return 0, false
	}
	return closes[len(closes)-1]/base - 1, true
}
