package market

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/domain"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "market.db"),
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	return NewStore(db, zerolog.Nop())
}

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func testBar(d int, close float64) domain.Bar {
	return domain.Bar{
		Timestamp: day(d),
		Symbol:    "AAPL",
		Open:      close - 0.5,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1_000_000,
	}
}

func TestUpsertAndGetBars(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{
		testBar(3, 100), testBar(4, 101), testBar(5, 102),
	}))

	bars, err := store.GetBars("AAPL", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.InDelta(t, 100.0, bars[0].Close, 1e-9)
	assert.True(t, bars[0].Timestamp.Equal(day(3)))
	assert.InDelta(t, 102.0, bars[2].Close, 1e-9)
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{testBar(3, 100)}))
	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{testBar(3, 105)}))

	bars, err := store.GetBars("AAPL", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 105.0, bars[0].Close, 1e-9)
}

func TestGetBarsRange(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{
		testBar(3, 100), testBar(4, 101), testBar(5, 102), testBar(6, 103),
	}))

	start := day(4)
	end := day(5)
	bars, err := store.GetBars("AAPL", &start, &end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.InDelta(t, 101.0, bars[0].Close, 1e-9)
	assert.InDelta(t, 102.0, bars[1].Close, 1e-9)
}

func TestGetBarsOtherSymbolExcluded(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{testBar(3, 100)}))
	msft := testBar(3, 400)
	msft.Symbol = "MSFT"
	require.NoError(t, store.UpsertBars("MSFT", []domain.Bar{msft}))

	bars, err := store.GetBars("AAPL", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "AAPL", bars[0].Symbol)
}

func TestBarsUntilWindow(t *testing.T) {
	store := setupStore(t)

	var bars []domain.Bar
	for d := 1; d <= 20; d++ {
		bars = append(bars, testBar(d, 100+float64(d)))
	}
	require.NoError(t, store.UpsertBars("AAPL", bars))

	got, err := store.BarsUntil("AAPL", day(10), 5)
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.True(t, got[0].Timestamp.Equal(day(5)))
	assert.True(t, got[5].Timestamp.Equal(day(10)))
}

func TestBarsForDate(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{testBar(3, 100)}))
	msft := testBar(3, 400)
	msft.Symbol = "MSFT"
	require.NoError(t, store.UpsertBars("MSFT", []domain.Bar{msft}))

	got, err := store.BarsForDate([]string{"AAPL", "MSFT", "NVDA"}, day(3))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 100.0, got["AAPL"].Close, 1e-9)
	assert.InDelta(t, 400.0, got["MSFT"].Close, 1e-9)
	_, ok := got["NVDA"]
	assert.False(t, ok)
}

func TestLastTimestamp(t *testing.T) {
	store := setupStore(t)

	ts, err := store.LastTimestamp("AAPL")
	require.NoError(t, err)
	assert.Nil(t, ts)

	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{
		testBar(3, 100), testBar(7, 104),
	}))

	ts, err = store.LastTimestamp("AAPL")
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, ts.Equal(day(7)))
}

func TestAllSymbols(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.UpsertBars("MSFT", []domain.Bar{testBar(3, 400)}))
	require.NoError(t, store.UpsertBars("AAPL", []domain.Bar{testBar(3, 100)}))

	symbols, err := store.AllSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}
