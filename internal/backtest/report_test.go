package backtest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/compass/internal/domain"
)

func sampleResult() *Result {
	outcomes := []domain.TradeOutcome{
		{Symbol: "AAPL", Strategy: domain.StrategyMomentum, Regime: domain.RegimeTrending, ExitReason: ExitStopLoss, PnLEUR: 100, RMultiple: 2},
		{Symbol: "MSFT", Strategy: domain.StrategyBreakout, Regime: domain.RegimeChoppy, ExitReason: ExitMaxHold, PnLEUR: -40, RMultiple: -0.8},
	}
	curve := weeklyCurve(10000, 10100, 10060)
	cfg := Config{
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
		CapitalEUR: 10000,
	}
	return &Result{
		Config:       cfg,
		Outcomes:     outcomes,
		EquityCurve:  curve,
		Metrics:      ComputeMetrics(outcomes, curve, cfg),
		WeeksPlanned: 3,
	}
}

func TestSaveJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, SaveJSON(sampleResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Result
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, 2, loaded.Metrics.TotalTrades)
	assert.Len(t, loaded.Outcomes, 2)
	assert.InDelta(t, 10060.0, loaded.Metrics.EndCapital, 1e-9)
}

func TestWriteReport(t *testing.T) {
	var sb strings.Builder
	WriteReport(&sb, sampleResult())
	out := sb.String()

	assert.Contains(t, out, "Backtest 2024-01-01 to 2024-01-19")
	assert.Contains(t, out, "Weeks planned: 3")
	assert.Contains(t, out, "By strategy")
	assert.Contains(t, out, domain.StrategyMomentum)
	assert.Contains(t, out, ExitMaxHold)
}
