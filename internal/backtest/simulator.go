// Package backtest replays the weekly trading workflow over historical
// bars: plan on Monday, enter on Tuesday's open, manage stops through the
// week, close stale positions on Friday.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
	"github.com/aristath/compass/internal/portfolio"
	"github.com/aristath/compass/internal/risk"
)

// Simulation parameters.
const (
	// entrySlippage models buying slightly above Tuesday's open.
	entrySlippage = 1.002

	// exitSlippage models selling slightly below the stop.
	exitSlippage = 0.999

	// commissionEUR is the flat round-trip commission per trade.
	commissionEUR = 1.0

	// riskPercent is the per-trade risk as a share of current equity.
	riskPercent = 0.015

	// benchmarkADXFloor skips planning in directionless weeks.
	benchmarkADXFloor = 15.0

	// Trailing stop: once a position is up trailTrigger from entry at its
	// highest high, the stop ratchets under that high with a floor above
	// entry.
	trailTrigger     = 0.06
	trailStopFactor  = 0.985
	trailFloorFactor = 1.035

	// maxHoldWeeks closes positions that have gone nowhere.
	maxHoldWeeks = 8

	benchmarkLookbackDays = 450
)

// Exit reasons recorded on trade outcomes.
const (
	ExitStopLoss     = "stop_loss"
	ExitTrailingStop = "trailing_stop"
	ExitMaxHold      = "max_hold"
	ExitBearMarket   = "bear_market_exit"
	ExitForcedClose  = "forced_close"
)

// BarSource supplies the historical data for the simulation.
type BarSource interface {
	BarsUntil(symbol string, end time.Time, lookbackDays int) ([]domain.Bar, error)
	BarsForDate(symbols []string, date time.Time) (map[string]domain.Bar, error)
}

// PlanSource generates a portfolio plan for a date.
type PlanSource interface {
	GeneratePlan(symbols []string, asOf time.Time, rate float64, cfg portfolio.Config) (*domain.PortfolioPlan, error)
}

// Config holds the simulation inputs.
type Config struct {
	Symbols    []string  `json:"symbols"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CapitalEUR float64   `json:"capital_eur"`
	Slots      int       `json:"slots"`
	Benchmark  string    `json:"benchmark"`
	Rate       float64   `json:"rate"` // USD to EUR, fixed for the run
	ExitOnBear bool      `json:"exit_on_bear"`
}

// EquityPoint is one weekly mark of the equity curve.
type EquityPoint struct {
	Date      time.Time `json:"date"`
	EquityEUR float64   `json:"equity_eur"`
}

// Result is the full simulation output.
type Result struct {
	Config       Config                `json:"config"`
	Outcomes     []domain.TradeOutcome `json:"outcomes"`
	EquityCurve  []EquityPoint         `json:"equity_curve"`
	Metrics      Metrics               `json:"metrics"`
	WeeksPlanned int                   `json:"weeks_planned"`
	WeeksSkipped int                   `json:"weeks_skipped"`
}

// openPosition tracks a holding inside the simulation.
type openPosition struct {
	domain.Position
	initialStop float64
}

// Simulator replays the weekly workflow.
type Simulator struct {
	bars    BarSource
	planner PlanSource
	riskMgr *risk.Manager
	log     zerolog.Logger

	cash      float64
	positions []*openPosition
	outcomes  []domain.TradeOutcome
	curve     []EquityPoint
}

// NewSimulator creates a simulator.
func NewSimulator(bars BarSource, planner PlanSource, riskMgr *risk.Manager, log zerolog.Logger) *Simulator {
	return &Simulator{
		bars:    bars,
		planner: planner,
		riskMgr: riskMgr,
		log:     log.With().Str("component", "backtest").Logger(),
	}
}

// Run walks the date range week by week and returns the result.
func (s *Simulator) Run(cfg Config) (*Result, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("invalid exchange rate %.4f", cfg.Rate)
	}
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}

	s.cash = cfg.CapitalEUR
	s.positions = nil
	s.outcomes = nil
	s.curve = nil

	result := &Result{Config: cfg}

	var lastDate time.Time
	for monday := nextWeekday(cfg.Start, time.Monday); !monday.After(cfg.End); monday = monday.AddDate(0, 0, 7) {
		plan, slots := s.planWeek(monday, cfg, result)

		for offset := 1; offset <= 4; offset++ {
			day := monday.AddDate(0, 0, offset)
			if day.After(cfg.End) {
				break
			}
			lastDate = day

			dayBars, err := s.bars.BarsForDate(s.heldAndPlanned(plan), day)
			if err != nil {
				s.log.Warn().Err(err).Time("date", day).Msg("No bars for date")
				continue
			}
			if len(dayBars) == 0 {
				continue
			}

			switch day.Weekday() {
			case time.Tuesday:
				// Carry-over stops first, then entries, then a re-check
				// so a fresh position can stop out the same day
				s.checkStops(day, dayBars, cfg.Rate)
				if plan != nil {
					s.enterPositions(plan, dayBars, day, slots, cfg)
				}
				s.checkStops(day, dayBars, cfg.Rate)
			default:
				s.updateTrailing(dayBars)
				s.checkStops(day, dayBars, cfg.Rate)
				if day.Weekday() == time.Friday {
					s.closeStale(day, dayBars, cfg.Rate)
				}
			}
		}

		s.curve = append(s.curve, EquityPoint{
			Date:      monday.AddDate(0, 0, 4),
			EquityEUR: s.equity(monday.AddDate(0, 0, 4), cfg.Rate),
		})
	}

	s.forceClose(lastDate, cfg.Rate)

	result.Outcomes = s.outcomes
	result.EquityCurve = s.curve
	result.Metrics = ComputeMetrics(s.outcomes, s.curve, cfg)
	return result, nil
}

// planWeek runs Monday's regime checks and plan generation. Returns a nil
// plan when the week is skipped, and the slot count after bear adjustment.
func (s *Simulator) planWeek(monday time.Time, cfg Config, result *Result) (*domain.PortfolioPlan, int) {
	slots := cfg.Slots

	bench, err := s.benchmarkSeries(monday, cfg.Benchmark)
	if err != nil || bench == nil {
		s.log.Warn().Time("monday", monday).Msg("No benchmark data, skipping week")
		result.WeeksSkipped++
		return nil, slots
	}

	adx := bench.Last(indicators.ColADX14)
	if !math.IsNaN(adx) && adx < benchmarkADXFloor {
		s.log.Debug().Time("monday", monday).Float64("adx", adx).Msg("Directionless week, no new entries")
		result.WeeksSkipped++
		return nil, slots
	}

	close := bench.LastBar().Close
	sma50 := bench.Last(indicators.ColSMA50)
	sma200 := bench.Last(indicators.ColSMA200)

	belowSMA50 := !math.IsNaN(sma50) && close < sma50
	belowSMA200 := !math.IsNaN(sma200) && close < sma200

	if belowSMA50 && belowSMA200 {
		s.log.Info().Time("monday", monday).Msg("Bear market, cash mode")
		if cfg.ExitOnBear {
			s.exitAll(monday, ExitBearMarket, cfg.Rate)
		}
		result.WeeksSkipped++
		return nil, slots
	}
	if belowSMA200 {
		slots--
		if slots < 1 {
			slots = 1
		}
	}

	equity := s.equity(monday, cfg.Rate)
	plan, err := s.planner.GeneratePlan(cfg.Symbols, monday, cfg.Rate, portfolio.Config{
		CapitalEUR:   equity,
		RiskEUR:      equity * riskPercent,
		MaxPositions: slots,
		SizingMethod: "risk_based",
		Benchmark:    cfg.Benchmark,
	})
	if err != nil {
		s.log.Warn().Err(err).Time("monday", monday).Msg("Plan generation failed")
		result.WeeksSkipped++
		return nil, slots
	}

	result.WeeksPlanned++
	return plan, slots
}

// enterPositions fills Tuesday's entries from the plan, re-sizing at the
// actual entry price against current equity and cash.
func (s *Simulator) enterPositions(plan *domain.PortfolioPlan, dayBars map[string]domain.Bar, day time.Time, slots int, cfg Config) {
	equity := s.equity(day, cfg.Rate)

	for _, sig := range plan.Signals {
		if len(s.positions) >= slots {
			break
		}
		if s.holds(sig.Symbol) {
			continue
		}
		bar, ok := dayBars[sig.Symbol]
		if !ok {
			continue
		}

		entry := bar.Open * entrySlippage
		sized := s.riskMgr.PositionSize(risk.SizeRequest{
			Entry:        entry,
			Stop:         sig.StopLoss,
			CapitalEUR:   equity,
			AvailableEUR: s.cash,
			RiskEUR:      equity * riskPercent,
			Rate:         cfg.Rate,
			Method:       "risk_based",
		})
		if sized.Quantity <= 0 {
			continue
		}

		s.cash -= sized.ValueEUR
		s.positions = append(s.positions, &openPosition{
			Position: domain.Position{
				Symbol:           sig.Symbol,
				Strategy:         sig.Strategy,
				Regime:           plan.Regime.Regime,
				EntryDate:        day,
				EntryPrice:       entry,
				Quantity:         sized.Quantity,
				OriginalQuantity: sized.Quantity,
				StopLoss:         sig.StopLoss,
				TargetPrice:      sig.TargetPrice,
				HighestPrice:     entry,
				CurrentStop:      sig.StopLoss,
				ATR:              sig.Metric("atr", 0),
			},
			initialStop: sig.StopLoss,
		})
		s.log.Debug().
			Str("symbol", sig.Symbol).
			Float64("entry", entry).
			Int("quantity", sized.Quantity).
			Msg("Entered position")
	}
}

// checkStops exits positions whose day's low touched the current stop.
func (s *Simulator) checkStops(day time.Time, dayBars map[string]domain.Bar, rate float64) {
	remaining := s.positions[:0]
	for _, pos := range s.positions {
		bar, ok := dayBars[pos.Symbol]
		if !ok {
			remaining = append(remaining, pos)
			continue
		}
		if bar.Low <= pos.CurrentStop {
			reason := ExitStopLoss
			if pos.TrailingActive {
				reason = ExitTrailingStop
			}
			s.closePosition(pos, day, pos.CurrentStop*exitSlippage, reason, rate)
			continue
		}
		remaining = append(remaining, pos)
	}
	s.positions = remaining
}

// updateTrailing refreshes the high-water mark from the day's high and
// ratchets stops on positions that are in sufficient profit.
func (s *Simulator) updateTrailing(dayBars map[string]domain.Bar) {
	for _, pos := range s.positions {
		bar, ok := dayBars[pos.Symbol]
		if !ok {
			continue
		}
		if bar.High > pos.HighestPrice {
			pos.HighestPrice = bar.High
		}
		if (pos.HighestPrice-pos.EntryPrice)/pos.EntryPrice >= trailTrigger {
			pos.TrailingActive = true
			trail := math.Max(pos.HighestPrice*trailStopFactor, pos.EntryPrice*trailFloorFactor)
			if trail > pos.CurrentStop {
				pos.CurrentStop = trail
			}
		}
	}
}

// closeStale closes positions held past the maximum hold at Friday's close.
func (s *Simulator) closeStale(day time.Time, dayBars map[string]domain.Bar, rate float64) {
	remaining := s.positions[:0]
	for _, pos := range s.positions {
		weeks := int(day.Sub(pos.EntryDate).Hours() / (24 * 7))
		bar, ok := dayBars[pos.Symbol]
		if weeks >= maxHoldWeeks && ok {
			s.closePosition(pos, day, bar.Close*exitSlippage, ExitMaxHold, rate)
			continue
		}
		remaining = append(remaining, pos)
	}
	s.positions = remaining
}

// exitAll liquidates everything at the last known close.
func (s *Simulator) exitAll(day time.Time, reason string, rate float64) {
	for _, pos := range s.positions {
		price := s.lastClose(pos.Symbol, day)
		if price <= 0 {
			price = pos.EntryPrice
		}
		s.closePosition(pos, day, price*exitSlippage, reason, rate)
	}
	s.positions = nil
}

// forceClose ends the simulation with no open positions.
func (s *Simulator) forceClose(day time.Time, rate float64) {
	if day.IsZero() {
		return
	}
	for _, pos := range s.positions {
		price := s.lastClose(pos.Symbol, day)
		if price <= 0 {
			price = pos.EntryPrice
		}
		s.closePosition(pos, day, price*exitSlippage, ExitForcedClose, rate)
	}
	s.positions = nil
}

// closePosition books the outcome and returns the proceeds to cash.
func (s *Simulator) closePosition(pos *openPosition, day time.Time, exitPrice float64, reason string, rate float64) {
	pnlUSD := (exitPrice - pos.EntryPrice) * float64(pos.Quantity)
	pnlEUR := pnlUSD*rate - commissionEUR

	rMultiple := 0.0
	if riskPerShare := pos.EntryPrice - pos.initialStop; riskPerShare > 0 {
		rMultiple = (exitPrice - pos.EntryPrice) / riskPerShare
	}

	// Proceeds net of the exit commission, so cash matches booked P&L
	s.cash += exitPrice*float64(pos.Quantity)*rate - commissionEUR

	s.outcomes = append(s.outcomes, domain.TradeOutcome{
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Regime:     pos.Regime,
		EntryDate:  pos.EntryDate,
		EntryPrice: pos.EntryPrice,
		ExitDate:   day,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		ExitReason: reason,
		PnLUSD:     pnlUSD,
		PnLEUR:     pnlEUR,
		RMultiple:  rMultiple,
		WeeksHeld:  int(day.Sub(pos.EntryDate).Hours() / (24 * 7)),
	})

	s.log.Debug().
		Str("symbol", pos.Symbol).
		Str("reason", reason).
		Float64("pnl_eur", pnlEUR).
		Msg("Closed position")
}

// equity is cash plus positions marked to the latest close at or before the
// given date.
func (s *Simulator) equity(day time.Time, rate float64) float64 {
	total := s.cash
	for _, pos := range s.positions {
		price := s.lastClose(pos.Symbol, day)
		if price <= 0 {
			price = pos.EntryPrice
		}
		total += price * float64(pos.Quantity) * rate
	}
	return total
}

// lastClose fetches the most recent close at or before a date.
func (s *Simulator) lastClose(symbol string, day time.Time) float64 {
	bars, err := s.bars.BarsUntil(symbol, day, 10)
	if err != nil || len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// benchmarkSeries loads and enriches the benchmark up to a date.
func (s *Simulator) benchmarkSeries(day time.Time, symbol string) (*indicators.Series, error) {
	bars, err := s.bars.BarsUntil(symbol, day, benchmarkLookbackDays)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return indicators.Enrich(indicators.NewSeries(symbol, bars), indicators.Options{}), nil
}

// holds reports whether a symbol is already a position.
func (s *Simulator) holds(symbol string) bool {
	for _, pos := range s.positions {
		if pos.Symbol == symbol {
			return true
		}
	}
	return false
}

// heldAndPlanned lists the symbols the simulator needs bars for on a day.
func (s *Simulator) heldAndPlanned(plan *domain.PortfolioPlan) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, pos := range s.positions {
		if !seen[pos.Symbol] {
			seen[pos.Symbol] = true
			symbols = append(symbols, pos.Symbol)
		}
	}
	if plan != nil {
		for _, sig := range plan.Signals {
			if !seen[sig.Symbol] {
				seen[sig.Symbol] = true
				symbols = append(symbols, sig.Symbol)
			}
		}
	}
	return symbols
}

// nextWeekday returns the first occurrence of the weekday at or after t,
// normalized to midnight UTC.
func nextWeekday(t time.Time, day time.Weekday) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for t.Weekday() != day {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
