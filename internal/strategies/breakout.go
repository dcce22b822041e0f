package strategies

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
)

// Breakout parameters.
const (
	breakoutSMAPeriod     = 50
	breakoutLookback      = 200
	breakoutWindow        = 3 // a close above the prior 20-day high within the last 3 bars
	bbSqueezeThreshold    = 0.05
	volumeSpikeMultiplier = 1.3
)

// Breakout buys range expansion: a close above the prior 20-day high out
// of a tight Bollinger squeeze, confirmed by a volume spike on the
// breakout day.
type Breakout struct {
	log zerolog.Logger
}

// NewBreakout creates the breakout strategy.
func NewBreakout(log zerolog.Logger) *Breakout {
	return &Breakout{log: log.With().Str("strategy", domain.StrategyBreakout).Logger()}
}

// Name implements Strategy.
func (b *Breakout) Name() string { return domain.StrategyBreakout }

// LookbackDays implements Strategy.
func (b *Breakout) LookbackDays() int { return breakoutLookback }

// Evaluate implements Strategy.
func (b *Breakout) Evaluate(s *indicators.Series, ctx Context) *domain.Signal {
	if s.Len() < breakoutSMAPeriod+25 {
		return nil
	}

	last := s.LastBar()

	dollarVolume := last.Close * last.Volume
	if dollarVolume < MinDollarVolume {
		b.log.Debug().Str("symbol", s.Symbol).Float64("dollar_volume", dollarVolume).Msg("Low liquidity")
		return nil
	}

	sma50 := s.Last(indicators.ColSMA50)
	if math.IsNaN(sma50) || last.Close <= sma50 {
		b.log.Debug().Str("symbol", s.Symbol).Msg("Below SMA50")
		return nil
	}

	breakoutIdx := b.findBreakoutDay(s)
	if breakoutIdx < 0 {
		b.log.Debug().Str("symbol", s.Symbol).Msg("No breakout in window")
		return nil
	}

	// Squeeze and volume confirmation apply on the breakout day itself
	bw := s.Column(indicators.ColBBBandwidth)[breakoutIdx]
	if math.IsNaN(bw) || bw >= bbSqueezeThreshold {
		b.log.Debug().Str("symbol", s.Symbol).Float64("bandwidth", bw).Msg("No squeeze before breakout")
		return nil
	}

	volSMA := s.Column(indicators.ColVolSMA20)[breakoutIdx]
	volume := s.Bars[breakoutIdx].Volume
	if math.IsNaN(volSMA) || volSMA == 0 || volume <= volumeSpikeMultiplier*volSMA {
		b.log.Debug().Str("symbol", s.Symbol).Msg("No volume spike on breakout day")
		return nil
	}
	volumeRatio := volume / volSMA

	sig := buildSignal(domain.StrategyBreakout, s, ctx)
	if sig == nil {
		return nil
	}

	high20 := s.Column(indicators.ColHigh20)[breakoutIdx-1]

	sig.FiltersPassed["liquidity"] = fmt.Sprintf("$%.0f", dollarVolume)
	sig.FiltersPassed["trend"] = fmt.Sprintf("Price $%.2f > SMA%d $%.2f", last.Close, breakoutSMAPeriod, sma50)
	sig.FiltersPassed["breakout"] = fmt.Sprintf("Close $%.2f > 20d high $%.2f", s.Bars[breakoutIdx].Close, high20)
	sig.FiltersPassed["volume_spike"] = fmt.Sprintf("%.1fx average volume", volumeRatio)

	sig.Metrics["high_20"] = high20
	sig.Metrics["volume_ratio"] = volumeRatio
	sig.Metrics["bb_bandwidth"] = bw
	sig.Metrics["sma_50"] = sma50
	sig.Metrics["dollar_volume"] = dollarVolume
	sig.Metrics["natr"] = indicators.Coalesce(s.Last(indicators.ColNATR), 3.0)
	sig.Metrics["atr_stop_pct"] = atrStopPercent(sig.EntryPrice, sig.StopLoss)
	return sig
}

// findBreakoutDay scans the last breakoutWindow bars for a close above the
// previous bar's 20-day high. Returns the bar index, or -1.
func (b *Breakout) findBreakoutDay(s *indicators.Series) int {
	high20 := s.Column(indicators.ColHigh20)
	n := s.Len()

	for offset := 0; offset < breakoutWindow; offset++ {
		i := n - 1 - offset
		if i < 1 {
			break
		}
		prevHigh := high20[i-1]
		if math.IsNaN(prevHigh) {
			continue
		}
		if s.Bars[i].Close > prevHigh {
			return i
		}
	}
	return -1
}
