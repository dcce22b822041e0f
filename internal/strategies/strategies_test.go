package strategies

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
)

func testContext() Context {
	return Context{
		AsOf:    time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC),
		Rate:    0.92,
		RiskEUR: 150,
	}
}

func makeSeries(t *testing.T, symbol string, n int, bar func(i int) (high, low, close, volume float64)) *indicators.Series {
	t.Helper()

	bars := make([]domain.Bar, n)
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		h, l, c, v := bar(i)
		bars[i] = domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Symbol:    symbol,
			Open:      c,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    v,
		}
	}
	return indicators.Enrich(indicators.NewSeries(symbol, bars), indicators.Options{})
}

func uptrend(i int) (float64, float64, float64, float64) {
	base := 100 + float64(i)*0.3
	return base + 1, base - 1, base, 1_000_000
}

func TestMomentumBuysUptrend(t *testing.T) {
	s := makeSeries(t, "AAPL", 200, uptrend)

	sig := NewMomentum(zerolog.Nop()).Evaluate(s, testContext())
	require.NotNil(t, sig)

	assert.Equal(t, domain.StrategyMomentum, sig.Strategy)
	assert.Equal(t, "AAPL", sig.Symbol)
	assert.Greater(t, sig.PositionSize, 0)
	assert.Less(t, sig.StopLoss, sig.EntryPrice)
	assert.Greater(t, sig.TargetPrice, sig.EntryPrice)
	assert.Greater(t, sig.Metrics["return_3m"], 0.0)
	assert.Contains(t, sig.FiltersPassed, "momentum")
}

func TestMomentumRejectsDowntrend(t *testing.T) {
	s := makeSeries(t, "AAPL", 200, func(i int) (float64, float64, float64, float64) {
		base := 200 - float64(i)*0.3
		return base + 1, base - 1, base, 1_000_000
	})

	assert.Nil(t, NewMomentum(zerolog.Nop()).Evaluate(s, testContext()))
}

func TestMomentumRejectsIlliquid(t *testing.T) {
	s := makeSeries(t, "TINY", 200, func(i int) (float64, float64, float64, float64) {
		base := 100 + float64(i)*0.3
		return base + 1, base - 1, base, 100
	})

	assert.Nil(t, NewMomentum(zerolog.Nop()).Evaluate(s, testContext()))
}

func TestMomentumRejectsBenchmarkLaggard(t *testing.T) {
	// Grinds up slowly while the benchmark rips
	s := makeSeries(t, "SLOW", 200, func(i int) (float64, float64, float64, float64) {
		base := 100 + float64(i)*0.05
		return base + 1, base - 1, base, 1_000_000
	})
	benchmark := makeSeries(t, "SPY", 200, func(i int) (float64, float64, float64, float64) {
		base := 100 + float64(i)*2
		return base + 1, base - 1, base, 1_000_000
	})

	ctx := testContext()
	ctx.Benchmark = benchmark
	assert.Nil(t, NewMomentum(zerolog.Nop()).Evaluate(s, ctx))
}

func TestMomentumInsufficientData(t *testing.T) {
	s := makeSeries(t, "NEW", 50, uptrend)
	assert.Nil(t, NewMomentum(zerolog.Nop()).Evaluate(s, testContext()))
}

func TestMeanReversionBuysPullback(t *testing.T) {
	// Long uptrend, then a sharp three-week pullback that stays above SMA200
	s := makeSeries(t, "MSFT", 260, func(i int) (float64, float64, float64, float64) {
		var base float64
		if i < 240 {
			base = 100 + float64(i)*0.5
		} else {
			base = 220 - float64(i-239)*1.0
		}
		return base + 1, base - 1, base, 1_000_000
	})

	sig := NewMeanReversion(zerolog.Nop()).Evaluate(s, testContext())
	require.NotNil(t, sig)

	assert.Equal(t, domain.StrategyMeanReversion, sig.Strategy)
	assert.Less(t, sig.Metrics["rsi"], 40.0)
	assert.Greater(t, sig.EntryPrice, sig.Metrics["sma_floor"])
}

func TestMeanReversionRejectsStrength(t *testing.T) {
	// A steady uptrend is never oversold
	s := makeSeries(t, "MSFT", 260, uptrend)
	assert.Nil(t, NewMeanReversion(zerolog.Nop()).Evaluate(s, testContext()))
}

func TestMeanReversionRejectsBrokenTrend(t *testing.T) {
	// Collapse far below the 200-day average
	s := makeSeries(t, "MSFT", 260, func(i int) (float64, float64, float64, float64) {
		var base float64
		if i < 240 {
			base = 100 + float64(i)*0.5
		} else {
			base = 220 - float64(i-239)*8.0
		}
		return base + 1, base - 1, base, 10_000_000
	})

	assert.Nil(t, NewMeanReversion(zerolog.Nop()).Evaluate(s, testContext()))
}

func breakoutSeries(t *testing.T, breakoutVolume float64) *indicators.Series {
	return makeSeries(t, "NVDA", 80, func(i int) (float64, float64, float64, float64) {
		if i == 79 {
			return 103.5, 100, 103, breakoutVolume
		}
		return 100.5, 99.5, 100, 1_000_000
	})
}

func TestBreakoutBuysRangeExpansion(t *testing.T) {
	s := breakoutSeries(t, 3_000_000)

	sig := NewBreakout(zerolog.Nop()).Evaluate(s, testContext())
	require.NotNil(t, sig)

	assert.Equal(t, domain.StrategyBreakout, sig.Strategy)
	assert.Greater(t, sig.Metrics["volume_ratio"], 1.3)
	assert.Less(t, sig.Metrics["bb_bandwidth"], 0.05)
	assert.Contains(t, sig.FiltersPassed, "breakout")
}

func TestBreakoutRequiresVolumeSpike(t *testing.T) {
	s := breakoutSeries(t, 1_000_000)
	assert.Nil(t, NewBreakout(zerolog.Nop()).Evaluate(s, testContext()))
}

func TestBreakoutRequiresNewHigh(t *testing.T) {
	// Quiet range, no bar clears the prior 20-day high
	s := makeSeries(t, "NVDA", 80, func(i int) (float64, float64, float64, float64) {
		return 100.5, 99.5, 100, 5_000_000
	})
	assert.Nil(t, NewBreakout(zerolog.Nop()).Evaluate(s, testContext()))
}

func TestStopAndTargetFloors(t *testing.T) {
	// Tiny ATR: the percentage floors take over
	stop, target := stopAndTarget(100, 0.1)
	assert.InDelta(t, 99.8, stop, 1e-9)
	assert.InDelta(t, 104.0, target, 1e-9)

	// Wide ATR: the ATR multiples take over
	stop, target = stopAndTarget(100, 2)
	assert.InDelta(t, 96.0, stop, 1e-9)
	assert.InDelta(t, 106.0, target, 1e-9)
}

func TestStopAndTargetBadATR(t *testing.T) {
	// Invalid ATR falls back to 3% of entry
	stop, target := stopAndTarget(100, 0)
	assert.InDelta(t, 95.0, stop, 1e-9)
	assert.InDelta(t, 109.0, target, 1e-9)
}

func TestSizeByRisk(t *testing.T) {
	// 150 EUR at 0.92: ~163 USD of risk over a 4 USD stop distance
	qty := sizeByRisk(100, 96, 150, 0.92)
	assert.Equal(t, 40, qty)

	assert.Equal(t, 0, sizeByRisk(100, 100, 150, 0.92))
	assert.Equal(t, 0, sizeByRisk(100, 104, 150, 0.92))
}

func TestEconomicsViable(t *testing.T) {
	// 100 EUR trade: 2 EUR commission is exactly 2%
	assert.True(t, economicsViable(100, 1, 1.0))

	// Tiny trade fails the minimum value floor
	assert.False(t, economicsViable(10, 1, 1.0))
}

func TestTrailingReturn(t *testing.T) {
	closes := []float64{100, 110, 121}
	ret, ok := trailingReturn(closes, 2)
	require.True(t, ok)
	assert.InDelta(t, 0.21, ret, 1e-9)

	_, ok = trailingReturn(closes, 3)
	assert.False(t, ok)
}
