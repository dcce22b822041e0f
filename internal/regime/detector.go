// Package regime classifies the market regime from benchmark bars.
package regime

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
)

// Classification thresholds.
const (
	adxTrending  = 25.0
	adxStrong    = 30.0
	adxChoppy    = 20.0
	bbSqueeze    = 0.02
	atrCalmLimit = 2.5
	minBars      = 50
	LookbackDays = 150
)

// Detector classifies market regimes from a benchmark symbol's bars.
// Snapshots are cached per (symbol, date) so repeated pipeline runs within
// the same session reuse the computed regime.
type Detector struct {
	mu    sync.RWMutex
	cache map[string]domain.RegimeSnapshot
	log   zerolog.Logger
}

// NewDetector creates a regime detector.
func NewDetector(log zerolog.Logger) *Detector {
	return &Detector{
		cache: make(map[string]domain.RegimeSnapshot),
		log:   log.With().Str("component", "regime").Logger(),
	}
}

// Detect classifies the regime from benchmark bars as of a date.
// With fewer than 50 bars the detector returns a neutral default rather
// than guessing from noise.
func (d *Detector) Detect(symbol string, bars []domain.Bar, asOf time.Time) domain.RegimeSnapshot {
	key := cacheKey(symbol, asOf)

	d.mu.RLock()
	if snap, ok := d.cache[key]; ok {
		d.mu.RUnlock()
		return snap
	}
	d.mu.RUnlock()

	snap := d.classify(bars, asOf)

	d.mu.Lock()
	d.cache[key] = snap
	d.mu.Unlock()

	d.log.Debug().
		Str("symbol", symbol).
		Str("regime", snap.Regime).
		Float64("adx", snap.ADX).
		Float64("confidence", snap.Confidence).
		Msg("Regime detected")
	return snap
}

// defaultSnapshot is the neutral answer when there is not enough history.
func defaultSnapshot(asOf time.Time) domain.RegimeSnapshot {
	return domain.RegimeSnapshot{
		Regime:      domain.RegimeChoppy,
		ADX:         20,
		ATRPercent:  1.5,
		Trend:       domain.TrendNeutral,
		BBBandwidth: 0.05,
		Confidence:  50,
		Timestamp:   asOf,
	}
}

func (d *Detector) classify(bars []domain.Bar, asOf time.Time) domain.RegimeSnapshot {
	if len(bars) < minBars {
		return defaultSnapshot(asOf)
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}

	last := len(bars) - 1
	close := closes[last]

	sma50 := indicators.SMA(closes, 50)[last]
	// With short history the long average cannot exist yet; the 50-day
	// average stands in so the trend read stays defined.
	sma200 := sma50
	if len(bars) >= 200 {
		sma200 = indicators.SMA(closes, 200)[last]
	}

	adxCol := indicators.ADX(highs, lows, closes, 14).ADX
	natrCol := indicators.NATR(highs, lows, closes, 14)
	bwCol := indicators.Bollinger(closes, 20, 2.0).Bandwidth

	adx := indicators.Coalesce(adxCol[last], 20)
	atrPct := indicators.Coalesce(natrCol[last], 1)
	bw := indicators.Coalesce(bwCol[last], 0.05)

	trend := domain.TrendNeutral
	switch {
	case close > sma50 && close > sma200:
		trend = domain.TrendUp
	case close < sma50 && close < sma200:
		trend = domain.TrendDown
	}

	snap := domain.RegimeSnapshot{
		ADX:         adx,
		ATRPercent:  atrPct,
		Trend:       trend,
		BBBandwidth: bw,
		Price:       close,
		SMA50:       sma50,
		SMA200:      sma200,
		Timestamp:   asOf,
	}

	switch {
	case adx > adxStrong && trend == domain.TrendUp && atrPct < atrCalmLimit:
		snap.Regime = domain.RegimeStrongTrend
		snap.Confidence = 90
	case bw < bbSqueeze && adx < adxChoppy:
		snap.Regime = domain.RegimeBreakout
		snap.Confidence = 75
	case adx > adxTrending:
		snap.Regime = domain.RegimeTrending
		if adx > adxStrong {
			snap.Confidence = 80
		} else {
			snap.Confidence = 70
		}
	case adx < adxChoppy:
		snap.Regime = domain.RegimeChoppy
		snap.Confidence = 65
	default:
		snap.Regime = domain.RegimeChoppy
		snap.Confidence = 50
	}

	return snap
}

// PrimaryStrategy maps a regime to the strategy that should lead it.
func PrimaryStrategy(regime string) string {
	switch regime {
	case domain.RegimeStrongTrend, domain.RegimeTrending:
		return domain.StrategyMomentum
	case domain.RegimeBreakout:
		return domain.StrategyBreakout
	default:
		return domain.StrategyMeanReversion
	}
}

func cacheKey(symbol string, asOf time.Time) string {
	return fmt.Sprintf("%s:%s", symbol, asOf.Format("2006-01-02"))
}
