// Package portfolio assembles ranked, sector-diverse, risk-sized
// portfolio plans from the strategy signals.
package portfolio

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
	"github.com/aristath/compass/internal/regime"
	"github.com/aristath/compass/internal/risk"
	"github.com/aristath/compass/internal/strategies"
)

// Portfolio construction parameters.
const (
	// PrimaryBoost multiplies scores of the regime's primary strategy.
	PrimaryBoost = 1.2

	// MaxNATRPercent drops signals whose volatility makes swing stops
	// impractical.
	MaxNATRPercent = 8.0

	// MaxSectorConcentration caps the capital share of a single sector.
	MaxSectorConcentration = 0.40

	// MaxSymbolsPerSector is a secondary cap on names per sector.
	MaxSymbolsPerSector = 99

	// DefaultRiskPercent derives the per-trade risk budget from capital
	// when no explicit risk setting exists.
	DefaultRiskPercent = 0.015
)

// BarSource supplies historical bars for evaluation.
type BarSource interface {
	BarsUntil(symbol string, end time.Time, lookbackDays int) ([]domain.Bar, error)
}

// ProtectionSource reports active trading restrictions.
type ProtectionSource interface {
	Status() (risk.ProtectionStatus, error)
}

// Config carries the tunables of a pipeline run.
type Config struct {
	CapitalEUR      float64
	RiskEUR         float64 // 0 = DefaultRiskPercent of capital
	StockAllocation float64 // share of capital deployable in stock, 0 = all
	MaxPositions    int
	SizingMethod    string
	Benchmark       string
	Extra           bool // auxiliary indicator columns
}

// stockBudget is the capital share available for positions.
func (c Config) stockBudget() float64 {
	if c.StockAllocation <= 0 || c.StockAllocation > 1 {
		return c.CapitalEUR
	}
	return c.CapitalEUR * c.StockAllocation
}

// Manager runs the signal pipeline.
type Manager struct {
	bars       BarSource
	detector   *regime.Detector
	strategies []strategies.Strategy
	riskMgr    *risk.Manager
	protection ProtectionSource
	log        zerolog.Logger
}

// NewManager creates a portfolio manager.
func NewManager(
	bars BarSource,
	detector *regime.Detector,
	strats []strategies.Strategy,
	riskMgr *risk.Manager,
	protection ProtectionSource,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		bars:       bars,
		detector:   detector,
		strategies: strats,
		riskMgr:    riskMgr,
		protection: protection,
		log:        log.With().Str("component", "portfolio").Logger(),
	}
}

// GeneratePlan runs the full pipeline for a date: regime detection,
// strategy evaluation across the watchlist, boosting, deduplication,
// volatility and sector filters, ranking, truncation and sizing.
func (m *Manager) GeneratePlan(symbols []string, asOf time.Time, rate float64, cfg Config) (*domain.PortfolioPlan, error) {
	stockEUR := cfg.stockBudget()
	plan := &domain.PortfolioPlan{
		ID:           uuid.NewString(),
		AsOf:         asOf,
		Capital:      cfg.CapitalEUR,
		MaxPositions: cfg.MaxPositions,
		SizingMethod: cfg.SizingMethod,
		Allocation: domain.CapitalAllocation{
			Stock: stockEUR,
			Cash:  cfg.CapitalEUR - stockEUR,
			Total: cfg.CapitalEUR,
		},
	}

	// Step 1: regime from the benchmark
	benchBars, err := m.bars.BarsUntil(cfg.Benchmark, asOf, regime.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark bars: %w", err)
	}
	plan.Regime = m.detector.Detect(cfg.Benchmark, benchBars, asOf)

	// Step 2: the regime picks the primary strategy
	plan.PrimaryStrategy = regime.PrimaryStrategy(plan.Regime.Regime)

	// Drawdown protection gates the whole run
	status, err := m.protection.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read drawdown protection: %w", err)
	}
	if status.IsStopped || status.IsPaused {
		m.log.Warn().
			Bool("stopped", status.IsStopped).
			Bool("paused", status.IsPaused).
			Strs("reasons", status.Reasons).
			Msg("Drawdown protection active, empty plan")
		return plan, nil
	}

	riskEUR := cfg.RiskEUR
	if riskEUR <= 0 {
		riskEUR = cfg.CapitalEUR * DefaultRiskPercent
	}
	riskEUR *= status.RiskMultiplier
	plan.RiskPerTrade = riskEUR

	maxPositions := cfg.MaxPositions
	if status.MaxPositions > 0 && status.MaxPositions < maxPositions {
		maxPositions = status.MaxPositions
	}
	plan.MaxPositions = maxPositions

	// Step 3: run every strategy over the watchlist
	signals := m.collectSignals(symbols, asOf, rate, riskEUR, cfg)

	// Step 4: boost the primary strategy's signals
	for i := range signals {
		if signals[i].Strategy == plan.PrimaryStrategy {
			signals[i].RegimeBoost = PrimaryBoost
		}
	}

	// Step 5: one signal per symbol, highest boost wins
	signals = dedupeBySymbol(signals)

	// Step 6: drop hyper-volatile names
	signals = filterVolatility(signals, m.log)

	// Step 7: score and rank
	for i := range signals {
		signals[i].Score = scoreSignal(&signals[i])
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].RankScore() > signals[j].RankScore()
	})

	// Step 8: sector diversity
	signals = m.applySectorDiversity(signals, rate, cfg.CapitalEUR)

	// Step 9: position count cap
	if len(signals) > maxPositions {
		signals = signals[:maxPositions]
	}

	// Step 10: final sizing under the available-capital constraint
	plan.Signals = m.applyDynamicSizing(signals, rate, cfg, riskEUR)

	m.log.Info().
		Str("regime", plan.Regime.Regime).
		Str("primary", plan.PrimaryStrategy).
		Int("signals", len(plan.Signals)).
		Msg("Plan generated")
	return plan, nil
}

// collectSignals evaluates all strategies on all symbols. Per-symbol
// failures are logged and skipped.
func (m *Manager) collectSignals(symbols []string, asOf time.Time, rate, riskEUR float64, cfg Config) []domain.Signal {
	var benchmark *indicators.Series
	if benchBars, err := m.bars.BarsUntil(cfg.Benchmark, asOf, strategies.NewMomentum(m.log).LookbackDays()); err == nil && len(benchBars) > 0 {
		benchmark = indicators.NewSeries(cfg.Benchmark, benchBars)
	}

	var signals []domain.Signal
	for _, strat := range m.strategies {
		sctx := strategies.Context{
			AsOf:      asOf,
			Rate:      rate,
			RiskEUR:   riskEUR,
			Benchmark: benchmark,
		}

		for _, symbol := range symbols {
			if IsExcludedETF(symbol) {
				continue
			}

			bars, err := m.bars.BarsUntil(symbol, asOf, strat.LookbackDays())
			if err != nil {
				m.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load bars, skipping")
				continue
			}
			if len(bars) == 0 {
				continue
			}

			series := indicators.Enrich(indicators.NewSeries(symbol, bars), indicators.Options{Extra: cfg.Extra})
			if sig := strat.Evaluate(series, sctx); sig != nil {
				signals = append(signals, *sig)
			}
		}
	}
	return signals
}

// dedupeBySymbol keeps the highest-boost signal per symbol, preserving
// collection order among equals.
func dedupeBySymbol(signals []domain.Signal) []domain.Signal {
	best := make(map[string]int)
	for i := range signals {
		j, seen := best[signals[i].Symbol]
		if !seen || signals[i].RegimeBoost > signals[j].RegimeBoost {
			best[signals[i].Symbol] = i
		}
	}

	out := make([]domain.Signal, 0, len(best))
	for i := range signals {
		if best[signals[i].Symbol] == i {
			out = append(out, signals[i])
		}
	}
	return out
}

// filterVolatility drops signals above the NATR ceiling.
func filterVolatility(signals []domain.Signal, log zerolog.Logger) []domain.Signal {
	out := signals[:0]
	for _, sig := range signals {
		if sig.Metric("natr", 3.0) > MaxNATRPercent {
			log.Debug().Str("symbol", sig.Symbol).Float64("natr", sig.Metrics["natr"]).Msg("Too volatile")
			continue
		}
		out = append(out, sig)
	}
	return out
}

// scoreSignal computes the strategy-specific ranking score.
func scoreSignal(sig *domain.Signal) float64 {
	switch sig.Strategy {
	case domain.StrategyMomentum:
		return sig.Metric("return_3m", 0) * 100
	case domain.StrategyMeanReversion:
		return 100 - sig.Metric("rsi", 50)
	case domain.StrategyBreakout:
		return sig.Metric("volume_ratio", 1) * 50
	}
	return 0
}

// applySectorDiversity walks the ranked signals and keeps those whose
// projected sector exposure stays under the concentration cap. Accepted
// signals count as simulated positions for the ones after them.
func (m *Manager) applySectorDiversity(signals []domain.Signal, rate, capitalEUR float64) []domain.Signal {
	sectorValue := make(map[string]float64)
	sectorCount := make(map[string]int)

	var out []domain.Signal
	for _, sig := range signals {
		sector := SectorFor(sig.Symbol)
		estValueEUR := sig.EntryPrice * float64(sig.PositionSize) * rate

		projected := (sectorValue[sector] + estValueEUR) / capitalEUR
		if projected > MaxSectorConcentration {
			m.log.Debug().
				Str("symbol", sig.Symbol).
				Str("sector", sector).
				Float64("projected", projected).
				Msg("Sector concentration cap")
			continue
		}
		if sectorCount[sector] >= MaxSymbolsPerSector {
			continue
		}

		sectorValue[sector] += estValueEUR
		sectorCount[sector]++
		out = append(out, sig)
	}
	return out
}

// applyDynamicSizing re-sizes the final signals, decrementing the stock
// allocation budget as each position is accepted.
func (m *Manager) applyDynamicSizing(signals []domain.Signal, rate float64, cfg Config, riskEUR float64) []domain.Signal {
	available := cfg.stockBudget()

	var out []domain.Signal
	for _, sig := range signals {
		result := m.riskMgr.PositionSize(risk.SizeRequest{
			Entry:        sig.EntryPrice,
			Stop:         sig.StopLoss,
			CapitalEUR:   cfg.CapitalEUR,
			AvailableEUR: available,
			RiskEUR:      riskEUR,
			Rate:         rate,
			Method:       cfg.SizingMethod,
			Slots:        cfg.MaxPositions,
		})
		if result.Quantity <= 0 {
			m.log.Debug().Str("symbol", sig.Symbol).Msg("No capital left for position")
			continue
		}

		sig.PositionSize = result.Quantity
		sig.RiskAmount = result.RiskEUR
		available -= result.ValueEUR
		out = append(out, sig)
	}
	return out
}
