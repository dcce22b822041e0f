package paper

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/events"
	"github.com/aristath/compass/internal/modules/journal"
	"github.com/aristath/compass/internal/risk"
)

type fixedRate struct{ rate float64 }

func (f fixedRate) USDToEUR() float64 { return f.rate }

type fakeSnapshots struct {
	prices map[string]float64
}

func (f *fakeSnapshots) LatestSnapshot(ctx context.Context, symbol string) (float64, error) {
	price, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("no snapshot")
	}
	return price, nil
}

func setupJournal(t *testing.T) *journal.Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE trading_journal (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT NOT NULL,
			strategy    TEXT,
			regime      TEXT,
			entry_date  TIMESTAMP,
			entry_price REAL,
			quantity    INTEGER,
			stop_loss   REAL,
			target_price REAL,
			current_stop_loss REAL,
			highest_price REAL,
			original_quantity INTEGER,
			atr REAL,
			trailing_active INTEGER,
			breakeven_active INTEGER,
			tp1_hit INTEGER,
			tp1_pnl REAL,
			exit_date   TIMESTAMP,
			exit_price  REAL,
			exit_reason TEXT,
			notes       TEXT,
			updated_at  TIMESTAMP
		);
		CREATE TABLE portfolio_plans (
			id         TEXT PRIMARY KEY,
			as_of      TIMESTAMP NOT NULL,
			regime     TEXT,
			payload    BLOB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE price_alert_sent (
			symbol     TEXT NOT NULL,
			level_type TEXT NOT NULL,
			sent_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (symbol, level_type)
		);
	`)
	require.NoError(t, err)

	return journal.NewRepository(db, zerolog.Nop())
}

func savePlan(t *testing.T, repo *journal.Repository, signals ...domain.Signal) {
	t.Helper()
	require.NoError(t, repo.SavePlan(domain.PortfolioPlan{
		ID:      uuid.NewString(),
		AsOf:    time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC),
		Regime:  domain.RegimeSnapshot{Regime: domain.RegimeTrending},
		Signals: signals,
	}))
}

func momentumSignal(symbol string) domain.Signal {
	return domain.Signal{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Strategy:     domain.StrategyMomentum,
		EntryPrice:   100,
		StopLoss:     95,
		TargetPrice:  112,
		PositionSize: 10,
		SignalDate:   time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestExecutePlanOpensPositions(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, momentumSignal("AAPL"), momentumSignal("MSFT"))

	bus := events.NewBus(zerolog.Nop())
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{
		"AAPL": 101.5, "MSFT": 402,
	}}, nil, nil, bus, zerolog.Nop())

	opened, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, opened)

	positions, err := repo.OpenPositions()
	require.NoError(t, err)
	require.Len(t, positions, 2)

	// Snapshot price beats the plan's stale entry price
	bySymbol := map[string]domain.Position{}
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}
	assert.InDelta(t, 101.5, bySymbol["AAPL"].EntryPrice, 1e-9)
	assert.Equal(t, domain.RegimeTrending, bySymbol["AAPL"].Regime)
	assert.Equal(t, 10, bySymbol["AAPL"].Quantity)

	fills := 0
drain:
	for {
		select {
		case e := <-ch:
			data, ok := e.Data.(*events.TradeExecutedData)
			require.True(t, ok)
			assert.Equal(t, "buy", data.Side)
			fills++
		default:
			break drain
		}
	}
	assert.Equal(t, 2, fills)
}

func TestExecutePlanSkipsHeldSymbols(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, momentumSignal("AAPL"))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 101}}, nil, nil, nil, zerolog.Nop())

	opened, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, opened)

	// Same plan again: the position already exists
	opened, err = trader.ExecutePlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, opened)
}

func TestExecutePlanFallsBackToPlanPrice(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, momentumSignal("AAPL"))

	trader := NewTrader(repo, &fakeSnapshots{}, nil, nil, nil, zerolog.Nop())

	opened, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, opened)

	positions, err := repo.OpenPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 100.0, positions[0].EntryPrice, 1e-9)
}

func TestExecutePlanNoPlan(t *testing.T) {
	repo := setupJournal(t)
	trader := NewTrader(repo, &fakeSnapshots{}, nil, nil, nil, zerolog.Nop())

	opened, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, opened)
}

func TestCheckExitsStopLoss(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, momentumSignal("AAPL"))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 100}}, nil, nil, nil, zerolog.Nop())
	_, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)

	// Price breaks the stop
	trader.snapshots = &fakeSnapshots{prices: map[string]float64{"AAPL": 94}}
	closed, err := trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	trades, err := repo.ClosedTrades(0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "stop_loss", trades[0].ExitReason)
	assert.InDelta(t, 94.0, trades[0].ExitPrice, 1e-9)
}

func TestCheckExitsTarget(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, momentumSignal("AAPL"))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 100}}, nil, nil, nil, zerolog.Nop())
	_, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)

	trader.snapshots = &fakeSnapshots{prices: map[string]float64{"AAPL": 113}}
	closed, err := trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	trades, err := repo.ClosedTrades(0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "target", trades[0].ExitReason)
}

func TestCheckExitsHoldsBetweenLevels(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, momentumSignal("AAPL"))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 100}}, nil, nil, nil, zerolog.Nop())
	_, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)

	trader.snapshots = &fakeSnapshots{prices: map[string]float64{"AAPL": 105}}
	closed, err := trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	positions, err := repo.OpenPositions()
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestCheckExitsSkipsMissingSnapshots(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, momentumSignal("AAPL"))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 100}}, nil, nil, nil, zerolog.Nop())
	_, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)

	trader.snapshots = &fakeSnapshots{}
	closed, err := trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

// Entry 100 with ATR 4: first rung at 106, second at 112.
func ladderSignal(symbol string, quantity int) domain.Signal {
	sig := momentumSignal(symbol)
	sig.PositionSize = quantity
	sig.TargetPrice = 150
	sig.Metrics = map[string]float64{"atr": 4}
	return sig
}

func TestCheckExitsFirstTakeProfitRung(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, ladderSignal("AAPL", 10))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 100}},
		risk.NewManager(zerolog.Nop()), fixedRate{rate: 0.92}, nil, zerolog.Nop())
	_, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)

	trader.snapshots = &fakeSnapshots{prices: map[string]float64{"AAPL": 107}}
	closed, err := trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	positions, err := repo.OpenPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, 5, p.Quantity)
	assert.Equal(t, 10, p.OriginalQuantity)
	assert.True(t, p.TP1Hit)
	assert.True(t, p.BreakevenActive)
	assert.InDelta(t, 100.0, p.CurrentStop, 1e-9)
	assert.InDelta(t, (107-100.0)*5*0.92, p.TP1PnL, 1e-9)
}

func TestCheckExitsSecondTakeProfitRung(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, ladderSignal("AAPL", 10))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 100}},
		risk.NewManager(zerolog.Nop()), fixedRate{rate: 0.92}, nil, zerolog.Nop())
	_, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)

	// First rung fires even when the price is already through both levels
	trader.snapshots = &fakeSnapshots{prices: map[string]float64{"AAPL": 113}}
	closed, err := trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	// Second pass closes the remainder
	closed, err = trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	trades, err := repo.ClosedTrades(0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "take_profit", trades[0].ExitReason)
	assert.Equal(t, 5, trades[0].Quantity)
}

func TestCheckExitsLadderSkipsSingleShare(t *testing.T) {
	repo := setupJournal(t)
	savePlan(t, repo, ladderSignal("AAPL", 1))

	trader := NewTrader(repo, &fakeSnapshots{prices: map[string]float64{"AAPL": 100}},
		risk.NewManager(zerolog.Nop()), fixedRate{rate: 0.92}, nil, zerolog.Nop())
	_, err := trader.ExecutePlan(context.Background())
	require.NoError(t, err)

	// One share cannot split, and the target is still far away
	trader.snapshots = &fakeSnapshots{prices: map[string]float64{"AAPL": 107}}
	closed, err := trader.CheckExits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}
