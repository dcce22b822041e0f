package regime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/compass/internal/domain"
)

func testBars(n int, price func(i int) (high, low, close float64)) []domain.Bar {
	bars := make([]domain.Bar, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		h, l, c := price(i)
		bars[i] = domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Symbol:    "SPY",
			Open:      c,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    1_000_000,
		}
	}
	return bars
}

func TestDetectTooFewBars(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	asOf := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	snap := d.Detect("SPY", testBars(30, func(i int) (float64, float64, float64) {
		return 101, 99, 100
	}), asOf)

	assert.Equal(t, domain.RegimeChoppy, snap.Regime)
	assert.Equal(t, domain.TrendNeutral, snap.Trend)
	assert.InDelta(t, 20.0, snap.ADX, 1e-9)
	assert.InDelta(t, 50.0, snap.Confidence, 1e-9)
}

func TestDetectStrongTrend(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	asOf := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	snap := d.Detect("SPY", testBars(150, func(i int) (float64, float64, float64) {
		base := 100 + float64(i)*0.8
		return base + 1, base - 1, base
	}), asOf)

	assert.Equal(t, domain.RegimeStrongTrend, snap.Regime)
	assert.Equal(t, domain.TrendUp, snap.Trend)
	assert.InDelta(t, 90.0, snap.Confidence, 1e-9)
	assert.Greater(t, snap.ADX, 30.0)

	// The snapshot carries the inputs of the trend read
	assert.InDelta(t, 100+149*0.8, snap.Price, 1e-9)
	assert.Greater(t, snap.Price, snap.SMA50)
	assert.Greater(t, snap.SMA50, 0.0)
	assert.Greater(t, snap.SMA200, 0.0)
}

func TestDetectTrendingHighADXDowntrend(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	asOf := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	// Steep decline: ADX saturates above 30 but the trend is down, so the
	// regime is trending with the higher confidence, not strong_trend
	snap := d.Detect("SPY", testBars(150, func(i int) (float64, float64, float64) {
		base := 300 - float64(i)*0.8
		return base + 1, base - 1, base
	}), asOf)

	assert.Equal(t, domain.RegimeTrending, snap.Regime)
	assert.Equal(t, domain.TrendDown, snap.Trend)
	assert.Greater(t, snap.ADX, 30.0)
	assert.InDelta(t, 80.0, snap.Confidence, 1e-9)
	assert.Less(t, snap.Price, snap.SMA50)
}

func TestDetectTrendingModerateADX(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	asOf := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	// Two steps forward, one smaller step back: directional movement nets
	// out to a DX near 27, inside the trending band but under 30
	closes := make([]float64, 120)
	closes[0] = 100
	for i := 1; i < 120; i++ {
		if i%2 == 1 {
			closes[i] = closes[i-1] + 2
		} else {
			closes[i] = closes[i-1] - 1.15
		}
	}
	snap := d.Detect("SPY", testBars(120, func(i int) (float64, float64, float64) {
		return closes[i] + 0.5, closes[i] - 0.5, closes[i]
	}), asOf)

	assert.Equal(t, domain.RegimeTrending, snap.Regime)
	assert.Greater(t, snap.ADX, 25.0)
	assert.LessOrEqual(t, snap.ADX, 30.0)
	assert.InDelta(t, 70.0, snap.Confidence, 1e-9)
}

func TestDetectChoppy(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	asOf := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	snap := d.Detect("SPY", testBars(120, func(i int) (float64, float64, float64) {
		c := 100.0
		if i%2 == 1 {
			c = 104.0
		}
		return c + 1, c - 1, c
	}), asOf)

	assert.Equal(t, domain.RegimeChoppy, snap.Regime)
	assert.InDelta(t, 65.0, snap.Confidence, 1e-9)
	assert.Less(t, snap.ADX, 20.0)
}

func TestDetectBreakoutSqueeze(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	asOf := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	snap := d.Detect("SPY", testBars(120, func(i int) (float64, float64, float64) {
		return 100.05, 99.95, 100
	}), asOf)

	assert.Equal(t, domain.RegimeBreakout, snap.Regime)
	assert.InDelta(t, 75.0, snap.Confidence, 1e-9)
	assert.Less(t, snap.BBBandwidth, 0.02)
}

func TestDetectCachesPerDate(t *testing.T) {
	d := NewDetector(zerolog.Nop())
	asOf := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	first := d.Detect("SPY", testBars(150, func(i int) (float64, float64, float64) {
		base := 100 + float64(i)*0.8
		return base + 1, base - 1, base
	}), asOf)

	// Different bars, same key: the cached snapshot wins
	second := d.Detect("SPY", testBars(30, func(i int) (float64, float64, float64) {
		return 101, 99, 100
	}), asOf)

	assert.Equal(t, first, second)

	// A different date recomputes
	third := d.Detect("SPY", testBars(30, func(i int) (float64, float64, float64) {
		return 101, 99, 100
	}), asOf.AddDate(0, 0, 1))
	assert.Equal(t, domain.RegimeChoppy, third.Regime)
	assert.InDelta(t, 50.0, third.Confidence, 1e-9)
}

func TestPrimaryStrategy(t *testing.T) {
	assert.Equal(t, domain.StrategyMomentum, PrimaryStrategy(domain.RegimeStrongTrend))
	assert.Equal(t, domain.StrategyMomentum, PrimaryStrategy(domain.RegimeTrending))
	assert.Equal(t, domain.StrategyBreakout, PrimaryStrategy(domain.RegimeBreakout))
	assert.Equal(t, domain.StrategyMeanReversion, PrimaryStrategy(domain.RegimeChoppy))
	assert.Equal(t, domain.StrategyMeanReversion, PrimaryStrategy("unknown"))
}
