package strategies

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
)

// Mean reversion parameters. The 200-day average is a long-term safety
// floor: deep dips are buyable only while the big trend is still up.
const (
	meanRevSMAPeriod = 200
	meanRevLookback  = 350
	rsiOversold      = 40.0
)

// MeanReversion buys panic: oversold RSI while price holds above its
// 200-day average.
type MeanReversion struct {
	log zerolog.Logger
}

// NewMeanReversion creates the mean reversion strategy.
func NewMeanReversion(log zerolog.Logger) *MeanReversion {
	return &MeanReversion{log: log.With().Str("strategy", domain.StrategyMeanReversion).Logger()}
}

// Name implements Strategy.
func (m *MeanReversion) Name() string { return domain.StrategyMeanReversion }

// LookbackDays implements Strategy.
func (m *MeanReversion) LookbackDays() int { return meanRevLookback }

// Evaluate implements Strategy.
func (m *MeanReversion) Evaluate(s *indicators.Series, ctx Context) *domain.Signal {
	if s.Len() < meanRevSMAPeriod+10 {
		m.log.Debug().Str("symbol", s.Symbol).Int("bars", s.Len()).Msg("Insufficient data")
		return nil
	}

	last := s.LastBar()

	dollarVolume := last.Close * last.Volume
	if dollarVolume < MinDollarVolume {
		m.log.Debug().Str("symbol", s.Symbol).Float64("dollar_volume", dollarVolume).Msg("Low liquidity")
		return nil
	}

	smaFloor := s.Last(indicators.ColSMA200)
	if math.IsNaN(smaFloor) || last.Close <= smaFloor {
		m.log.Debug().Str("symbol", s.Symbol).Msg("Below SMA200 floor")
		return nil
	}

	rsi := s.Last(indicators.ColRSI14)
	if math.IsNaN(rsi) || rsi >= rsiOversold {
		m.log.Debug().Str("symbol", s.Symbol).Float64("rsi", rsi).Msg("Not oversold")
		return nil
	}

	sig := buildSignal(domain.StrategyMeanReversion, s, ctx)
	if sig == nil {
		return nil
	}

	sig.FiltersPassed["liquidity"] = fmt.Sprintf("$%.0f", dollarVolume)
	sig.FiltersPassed["trend"] = fmt.Sprintf("Price $%.2f > SMA%d $%.2f", last.Close, meanRevSMAPeriod, smaFloor)
	sig.FiltersPassed["rsi_oversold"] = fmt.Sprintf("RSI %.1f < %.0f", rsi, rsiOversold)

	sig.Metrics["rsi"] = rsi
	sig.Metrics["sma_floor"] = smaFloor
	sig.Metrics["dollar_volume"] = dollarVolume
	sig.Metrics["natr"] = indicators.Coalesce(s.Last(indicators.ColNATR), 3.0)
	sig.Metrics["atr_stop_pct"] = atrStopPercent(sig.EntryPrice, sig.StopLoss)
	return sig
}
