// Package paper executes portfolio plans on paper: entries and exits are
// recorded in the trading journal at live snapshot prices, no broker
// involved.
package paper

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/events"
	"github.com/aristath/compass/internal/modules/journal"
	"github.com/aristath/compass/internal/risk"
)

// SnapshotSource supplies the latest price for a symbol.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, symbol string) (float64, error)
}

// RateSource converts USD amounts to EUR.
type RateSource interface {
	USDToEUR() float64
}

// Trader fills plans into the journal.
type Trader struct {
	journal   *journal.Repository
	snapshots SnapshotSource
	riskMgr   *risk.Manager
	rates     RateSource
	bus       *events.Bus
	log       zerolog.Logger
}

// NewTrader creates a paper trader. The bus and rate source may be nil;
// without a rate source realized partials are booked at parity.
func NewTrader(journalRepo *journal.Repository, snapshots SnapshotSource, riskMgr *risk.Manager, rates RateSource, bus *events.Bus, log zerolog.Logger) *Trader {
	return &Trader{
		journal:   journalRepo,
		snapshots: snapshots,
		riskMgr:   riskMgr,
		rates:     rates,
		bus:       bus,
		log:       log.With().Str("component", "paper").Logger(),
	}
}

// ExecutePlan opens a journal position for each plan signal not already
// held, at the current snapshot price. Returns how many positions were
// opened.
func (t *Trader) ExecutePlan(ctx context.Context) (int, error) {
	plan, err := t.journal.LatestPlan()
	if err != nil {
		return 0, fmt.Errorf("failed to load latest plan: %w", err)
	}
	if plan == nil || len(plan.Signals) == 0 {
		t.log.Info().Msg("No plan to execute")
		return 0, nil
	}

	open, err := t.journal.OpenPositions()
	if err != nil {
		return 0, fmt.Errorf("failed to load open positions: %w", err)
	}
	held := make(map[string]bool, len(open))
	for _, pos := range open {
		held[pos.Symbol] = true
	}

	opened := 0
	for _, sig := range plan.Signals {
		if held[sig.Symbol] {
			continue
		}

		price, err := t.snapshots.LatestSnapshot(ctx, sig.Symbol)
		if err != nil || price <= 0 {
			// Fall back to the plan's entry when the market is closed
			price = sig.EntryPrice
		}

		pos := sig.ToPosition(plan.Regime.Regime)
		pos.EntryPrice = price

		if _, err := t.journal.AddTrade(pos); err != nil {
			t.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Failed to record paper entry")
			continue
		}
		opened++

		t.log.Info().
			Str("symbol", sig.Symbol).
			Str("strategy", sig.Strategy).
			Float64("price", price).
			Int("quantity", sig.PositionSize).
			Msg("Paper entry")

		if t.bus != nil {
			t.bus.Publish(&events.TradeExecutedData{
				Symbol:   sig.Symbol,
				Side:     "buy",
				Quantity: sig.PositionSize,
				Price:    price,
				Strategy: sig.Strategy,
			})
		}
	}
	return opened, nil
}

// CheckExits walks open paper positions at snapshot prices: the take-profit
// ladder first, then stop and target crossings. Returns how many positions
// were fully closed.
func (t *Trader) CheckExits(ctx context.Context) (int, error) {
	positions, err := t.journal.OpenPositions()
	if err != nil {
		return 0, fmt.Errorf("failed to load open positions: %w", err)
	}

	rate := 1.0
	if t.rates != nil {
		if r := t.rates.USDToEUR(); r > 0 {
			rate = r
		}
	}

	closed := 0
	for _, pos := range positions {
		price, err := t.snapshots.LatestSnapshot(ctx, pos.Symbol)
		if err != nil || price <= 0 {
			continue
		}

		if t.riskMgr != nil {
			switch t.riskMgr.CheckTakeProfit(&pos, price) {
			case risk.TakeProfitOne:
				if t.applyFirstRung(pos, price, rate) {
					continue
				}
			case risk.TakeProfitTwo:
				if err := t.journal.ClosePosition(pos.Symbol, price, time.Now().UTC(), "take_profit"); err != nil {
					t.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to record paper exit")
					continue
				}
				closed++
				t.log.Info().
					Str("symbol", pos.Symbol).
					Str("reason", "take_profit").
					Float64("price", price).
					Msg("Paper exit")
				t.publishSell(pos.Symbol, pos.Strategy, pos.Quantity, price)
				continue
			}
		}

		stop := pos.CurrentStop
		if stop <= 0 {
			stop = pos.StopLoss
		}

		reason := ""
		switch {
		case price <= stop:
			reason = "stop_loss"
		case pos.TargetPrice > 0 && price >= pos.TargetPrice:
			reason = "target"
		default:
			continue
		}

		if err := t.journal.ClosePosition(pos.Symbol, price, time.Now().UTC(), reason); err != nil {
			t.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to record paper exit")
			continue
		}
		closed++

		t.log.Info().
			Str("symbol", pos.Symbol).
			Str("reason", reason).
			Float64("price", price).
			Msg("Paper exit")
		t.publishSell(pos.Symbol, pos.Strategy, pos.Quantity, price)
	}
	return closed, nil
}

// applyFirstRung sells half the position at price, moves the stop to
// breakeven and records the realized EUR P&L. A one-share position cannot
// split, so it falls through to the regular stop/target checks.
func (t *Trader) applyFirstRung(pos domain.Position, price, rate float64) bool {
	sold := pos.Quantity / 2
	if sold < 1 {
		return false
	}
	remaining := pos.Quantity - sold
	tp1PnL := (price - pos.EntryPrice) * float64(sold) * rate

	if err := t.journal.ApplyTakeProfitOne(pos.Symbol, remaining, pos.EntryPrice, tp1PnL); err != nil {
		t.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to record partial take-profit")
		return false
	}

	t.log.Info().
		Str("symbol", pos.Symbol).
		Int("sold", sold).
		Int("remaining", remaining).
		Float64("price", price).
		Float64("tp1_pnl_eur", tp1PnL).
		Msg("Paper partial take-profit, stop moved to breakeven")
	t.publishSell(pos.Symbol, pos.Strategy, sold, price)
	return true
}

func (t *Trader) publishSell(symbol, strategy string, quantity int, price float64) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(&events.TradeExecutedData{
		Symbol:   symbol,
		Side:     "sell",
		Quantity: quantity,
		Price:    price,
		Strategy: strategy,
	})
}
