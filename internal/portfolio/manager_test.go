package portfolio

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/regime"
	"github.com/aristath/compass/internal/risk"
	"github.com/aristath/compass/internal/strategies"
)

type fakeBars struct {
	data map[string][]domain.Bar
}

func (f *fakeBars) BarsUntil(symbol string, end time.Time, lookbackDays int) ([]domain.Bar, error) {
	return f.data[symbol], nil
}

type fakeProtection struct {
	status risk.ProtectionStatus
}

func (f *fakeProtection) Status() (risk.ProtectionStatus, error) {
	return f.status, nil
}

func uptrendBars(symbol string, n int, step float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		base := 100 + float64(i)*step
		bars[i] = domain.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Symbol:    symbol,
			Open:      base,
			High:      base + 1,
			Low:       base - 1,
			Close:     base,
			Volume:    1_000_000,
		}
	}
	return bars
}

func testManager(bars BarSource, strats []strategies.Strategy, protection ProtectionSource) *Manager {
	log := zerolog.Nop()
	return NewManager(bars, regime.NewDetector(log), strats, risk.NewManager(log), protection, log)
}

func TestDedupeBySymbol(t *testing.T) {
	signals := []domain.Signal{
		{Symbol: "AAPL", Strategy: domain.StrategyMomentum},
		{Symbol: "AAPL", Strategy: domain.StrategyBreakout, RegimeBoost: PrimaryBoost},
		{Symbol: "MSFT", Strategy: domain.StrategyMomentum},
	}

	out := dedupeBySymbol(signals)
	require.Len(t, out, 2)
	assert.Equal(t, domain.StrategyBreakout, out[0].Strategy)
	assert.Equal(t, "MSFT", out[1].Symbol)
}

func TestDedupeKeepsFirstAmongEquals(t *testing.T) {
	signals := []domain.Signal{
		{Symbol: "AAPL", Strategy: domain.StrategyMomentum},
		{Symbol: "AAPL", Strategy: domain.StrategyBreakout},
	}

	out := dedupeBySymbol(signals)
	require.Len(t, out, 1)
	assert.Equal(t, domain.StrategyMomentum, out[0].Strategy)
}

func TestFilterVolatility(t *testing.T) {
	signals := []domain.Signal{
		{Symbol: "CALM", Metrics: map[string]float64{"natr": 2.5}},
		{Symbol: "WILD", Metrics: map[string]float64{"natr": 9.1}},
		{Symbol: "NONE"}, // missing metric defaults under the ceiling
	}

	out := filterVolatility(signals, zerolog.Nop())
	require.Len(t, out, 2)
	assert.Equal(t, "CALM", out[0].Symbol)
	assert.Equal(t, "NONE", out[1].Symbol)
}

func TestScoreSignal(t *testing.T) {
	momentum := domain.Signal{Strategy: domain.StrategyMomentum, Metrics: map[string]float64{"return_3m": 0.15}}
	assert.InDelta(t, 15.0, scoreSignal(&momentum), 1e-9)

	meanRev := domain.Signal{Strategy: domain.StrategyMeanReversion, Metrics: map[string]float64{"rsi": 28}}
	assert.InDelta(t, 72.0, scoreSignal(&meanRev), 1e-9)

	breakout := domain.Signal{Strategy: domain.StrategyBreakout, Metrics: map[string]float64{"volume_ratio": 2.0}}
	assert.InDelta(t, 100.0, scoreSignal(&breakout), 1e-9)

	unknown := domain.Signal{Strategy: "other"}
	assert.InDelta(t, 0.0, scoreSignal(&unknown), 1e-9)
}

func TestApplySectorDiversity(t *testing.T) {
	m := testManager(&fakeBars{}, nil, &fakeProtection{})

	// Three tech names at ~18% of capital each: the third breaches 40%
	signals := []domain.Signal{
		{Symbol: "AAPL", EntryPrice: 100, PositionSize: 20},
		{Symbol: "MSFT", EntryPrice: 100, PositionSize: 20},
		{Symbol: "GOOGL", EntryPrice: 100, PositionSize: 20},
	}

	out := m.applySectorDiversity(signals, 0.92, 10000)
	require.Len(t, out, 2)
	assert.Equal(t, "AAPL", out[0].Symbol)
	assert.Equal(t, "MSFT", out[1].Symbol)
}

func TestApplySectorDiversityDifferentSectors(t *testing.T) {
	m := testManager(&fakeBars{}, nil, &fakeProtection{})

	signals := []domain.Signal{
		{Symbol: "AAPL", EntryPrice: 100, PositionSize: 20}, // Technology
		{Symbol: "JPM", EntryPrice: 100, PositionSize: 20},  // Financials
		{Symbol: "XOM", EntryPrice: 100, PositionSize: 20},  // Energy
	}

	out := m.applySectorDiversity(signals, 0.92, 10000)
	assert.Len(t, out, 3)
}

func TestApplyDynamicSizingDecrementsCapital(t *testing.T) {
	m := testManager(&fakeBars{}, nil, &fakeProtection{})

	signals := []domain.Signal{
		{Symbol: "AAPL", EntryPrice: 100, StopLoss: 96},
		{Symbol: "MSFT", EntryPrice: 100, StopLoss: 96},
		{Symbol: "JPM", EntryPrice: 100, StopLoss: 96},
		{Symbol: "XOM", EntryPrice: 100, StopLoss: 96},
	}
	cfg := Config{CapitalEUR: 4000, SizingMethod: "risk_based"}

	out := m.applyDynamicSizing(signals, 0.92, cfg, 150)
	require.Len(t, out, 4)

	// Each position is capped at a third of capital (14 shares, ~1288 EUR);
	// the last one squeezes into the remaining cash
	assert.Equal(t, 14, out[0].PositionSize)
	assert.Equal(t, 14, out[1].PositionSize)
	assert.Equal(t, 14, out[2].PositionSize)
	assert.Equal(t, 1, out[3].PositionSize)
}

func TestGeneratePlanStoppedProtection(t *testing.T) {
	bars := &fakeBars{data: map[string][]domain.Bar{}}
	m := testManager(bars, nil, &fakeProtection{status: risk.ProtectionStatus{IsStopped: true}})

	plan, err := m.GeneratePlan([]string{"AAPL"}, time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC), 0.92, Config{
		CapitalEUR: 10000, MaxPositions: 5, Benchmark: "SPY",
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Signals)
	assert.NotEmpty(t, plan.Regime.Regime)
}

func TestGeneratePlanAppliesRiskMultiplier(t *testing.T) {
	bars := &fakeBars{data: map[string][]domain.Bar{}}
	m := testManager(bars, nil, &fakeProtection{status: risk.ProtectionStatus{
		RiskMultiplier: 0.5,
		MaxPositions:   1,
	}})

	plan, err := m.GeneratePlan(nil, time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC), 0.92, Config{
		CapitalEUR: 10000, MaxPositions: 5, Benchmark: "SPY",
	})
	require.NoError(t, err)

	// Default risk is 1.5% of capital, halved by the multiplier
	assert.InDelta(t, 75.0, plan.RiskPerTrade, 1e-9)
	assert.Equal(t, 1, plan.MaxPositions)
}

func TestGeneratePlanEndToEnd(t *testing.T) {
	asOf := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	bars := &fakeBars{data: map[string][]domain.Bar{
		"SPY":  uptrendBars("SPY", 200, 0.3),
		"AAPL": uptrendBars("AAPL", 200, 0.4),
		"MSFT": uptrendBars("MSFT", 200, 0.3),
	}}

	log := zerolog.Nop()
	m := testManager(bars, []strategies.Strategy{strategies.NewMomentum(log)},
		&fakeProtection{status: risk.ProtectionStatus{RiskMultiplier: 1.0}})

	plan, err := m.GeneratePlan([]string{"AAPL", "MSFT", "SPY"}, asOf, 0.92, Config{
		CapitalEUR:   50000,
		RiskEUR:      150,
		MaxPositions: 5,
		SizingMethod: "risk_based",
		Benchmark:    "SPY",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyMomentum, plan.PrimaryStrategy)
	require.NotEmpty(t, plan.Signals)

	symbols := make(map[string]bool)
	for _, sig := range plan.Signals {
		symbols[sig.Symbol] = true
		assert.Greater(t, sig.PositionSize, 0)
		assert.InDelta(t, PrimaryBoost, sig.RegimeBoost, 1e-9)
		assert.Greater(t, sig.Score, 0.0)
	}

	// The benchmark ETF never trades
	assert.False(t, symbols["SPY"])

	// Ranked descending
	for i := 1; i < len(plan.Signals); i++ {
		assert.GreaterOrEqual(t, plan.Signals[i-1].RankScore(), plan.Signals[i].RankScore())
	}
}

func TestGeneratePlanCapitalAllocation(t *testing.T) {
	bars := &fakeBars{data: map[string][]domain.Bar{}}
	m := testManager(bars, nil, &fakeProtection{})

	plan, err := m.GeneratePlan(nil, time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC), 0.92, Config{
		CapitalEUR:      10000,
		StockAllocation: 0.7,
		MaxPositions:    5,
		Benchmark:       "SPY",
	})
	require.NoError(t, err)
	assert.InDelta(t, 7000.0, plan.Allocation.Stock, 1e-9)
	assert.InDelta(t, 3000.0, plan.Allocation.Cash, 1e-9)
	assert.InDelta(t, 10000.0, plan.Allocation.Total, 1e-9)

	// Without an explicit split everything is deployable
	plan, err = m.GeneratePlan(nil, time.Date(2024, 8, 6, 0, 0, 0, 0, time.UTC), 0.92, Config{
		CapitalEUR: 10000, MaxPositions: 5, Benchmark: "SPY",
	})
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, plan.Allocation.Stock, 1e-9)
	assert.InDelta(t, 0.0, plan.Allocation.Cash, 1e-9)
}

func TestApplyDynamicSizingHonorsStockAllocation(t *testing.T) {
	m := testManager(&fakeBars{}, nil, &fakeProtection{})

	signals := []domain.Signal{
		{Symbol: "AAPL", EntryPrice: 100, StopLoss: 96},
		{Symbol: "JPM", EntryPrice: 100, StopLoss: 96},
	}
	cfg := Config{CapitalEUR: 4000, StockAllocation: 0.5, SizingMethod: "risk_based"}

	out := m.applyDynamicSizing(signals, 0.92, cfg, 150)
	require.Len(t, out, 2)

	// The 33% single-position cap still keys off total capital, but the
	// second position only gets what is left of the 2000 EUR stock budget
	assert.Equal(t, 14, out[0].PositionSize)
	assert.Equal(t, 7, out[1].PositionSize)
}

func TestGeneratePlanCapsPositions(t *testing.T) {
	asOf := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	data := map[string][]domain.Bar{"SPY": uptrendBars("SPY", 200, 0.3)}
	watch := []string{"AAPL", "MSFT", "JPM", "XOM", "JNJ", "WMT"}
	for _, sym := range watch {
		data[sym] = uptrendBars(sym, 200, 0.3)
	}

	log := zerolog.Nop()
	m := testManager(&fakeBars{data: data}, []strategies.Strategy{strategies.NewMomentum(log)},
		&fakeProtection{status: risk.ProtectionStatus{RiskMultiplier: 1.0}})

	plan, err := m.GeneratePlan(watch, asOf, 0.92, Config{
		CapitalEUR:   50000,
		RiskEUR:      150,
		MaxPositions: 3,
		SizingMethod: "risk_based",
		Benchmark:    "SPY",
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(plan.Signals), 3)
}
