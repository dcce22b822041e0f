// Package strategies implements the swing signal generators: momentum,
// mean reversion and breakout. All strategies share the liquidity filter,
// ATR-based stop and target placement, and trade economics validation.
package strategies

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
)

// Shared filter constants.
const (
	// MinDollarVolume is the daily liquidity floor.
	MinDollarVolume = 3_000_000

	// MinTradeValueEUR rejects trades too small to matter.
	MinTradeValueEUR = 50.0

	// CommissionRoundTrip is the fixed entry plus exit commission in EUR.
	CommissionRoundTrip = 2.0

	// MaxCommissionPercent caps the commission as a share of trade value.
	MaxCommissionPercent = 2.0

	atrStopMultiple   = 2.0
	atrTargetMultiple = 3.0
	maxStopPercent    = 0.95 // stop never further than -5%
	minTargetPercent  = 1.04 // target at least +4%
)

// Context carries the evaluation inputs shared by all strategies.
type Context struct {
	AsOf      time.Time
	Rate      float64            // USD to EUR
	RiskEUR   float64            // risk budget per trade
	Benchmark *indicators.Series // enriched benchmark series, momentum only
}

// Strategy evaluates one symbol's enriched series into a signal or nil.
type Strategy interface {
	Name() string
	// LookbackDays is how much history the strategy needs.
	LookbackDays() int
	// Evaluate returns a signal when all entry filters pass, nil otherwise.
	Evaluate(s *indicators.Series, ctx Context) *domain.Signal
}

// stopAndTarget places the protective stop and the profit target from ATR,
// bounded so the stop risks at most 5% and the target pays at least 4%.
func stopAndTarget(entry, atr float64) (stop, target float64) {
	if math.IsNaN(atr) || atr <= 0 {
		atr = entry * 0.03
	}
	stop = math.Max(entry-atrStopMultiple*atr, entry*maxStopPercent)
	target = math.Max(entry+atrTargetMultiple*atr, entry*minTargetPercent)
	return stop, target
}

// sizeByRisk converts a EUR risk budget into a share count.
// Returns 0 when the trade cannot be sized.
func sizeByRisk(entry, stop, riskEUR, rate float64) int {
	riskPerShare := entry - stop
	if riskPerShare <= 0 || rate <= 0 {
		return 0
	}
	riskUSD := riskEUR / rate
	return int(riskUSD / riskPerShare)
}

// economicsViable checks minimum trade value and commission impact.
func economicsViable(entry float64, quantity int, rate float64) bool {
	tradeValueEUR := entry * float64(quantity) * rate
	if tradeValueEUR < MinTradeValueEUR {
		return false
	}
	commissionPercent := CommissionRoundTrip / tradeValueEUR * 100
	return commissionPercent <= MaxCommissionPercent
}

// buildSignal assembles the common signal fields. The caller fills in
// FiltersPassed and Metrics.
func buildSignal(strategy string, s *indicators.Series, ctx Context) *domain.Signal {
	last := s.LastBar()
	entry := last.Close

	atr := s.Last(indicators.ColATR14)
	stop, target := stopAndTarget(entry, atr)

	quantity := sizeByRisk(entry, stop, ctx.RiskEUR, ctx.Rate)
	if quantity <= 0 {
		return nil
	}
	if !economicsViable(entry, quantity, ctx.Rate) {
		return nil
	}

	return &domain.Signal{
		ID:            uuid.NewString(),
		Symbol:        s.Symbol,
		Strategy:      strategy,
		EntryPrice:    entry,
		StopLoss:      stop,
		TargetPrice:   target,
		PositionSize:  quantity,
		RiskAmount:    ctx.RiskEUR,
		SignalDate:    ctx.AsOf,
		FiltersPassed: make(map[string]string),
		Metrics:       make(map[string]float64),
		RegimeBoost:   1.0,
	}
}

// atrStopPercent is the stop distance as a percentage of entry, rounded to
// two decimals for reporting.
func atrStopPercent(entry, stop float64) float64 {
	return math.Round((entry-stop)/entry*100*100) / 100
}
