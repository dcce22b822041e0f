package risk

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aristath/compass/internal/modules/settings"
)

func setupProtection(t *testing.T) *DrawdownProtection {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE user_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	p := NewDrawdownProtection(settings.NewRepository(db, zerolog.Nop()), zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC) }
	return p
}

func TestProtectionDefaultStatus(t *testing.T) {
	p := setupProtection(t)

	status, err := p.Status()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, status.RiskMultiplier, 1e-9)
	assert.Equal(t, 0, status.MaxPositions)
	assert.False(t, status.IsPaused)
	assert.False(t, status.IsStopped)
	assert.Empty(t, status.Reasons)
}

func TestThreeLossesHalveRisk(t *testing.T) {
	p := setupProtection(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.RecordOutcome(-50, 10000))
	}

	status, err := p.Status()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, status.RiskMultiplier, 1e-9)
	assert.Equal(t, 0, status.MaxPositions)
}

func TestFiveLossesCapPositions(t *testing.T) {
	p := setupProtection(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.RecordOutcome(-50, 10000))
	}

	status, err := p.Status()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, status.RiskMultiplier, 1e-9)
	assert.Equal(t, 1, status.MaxPositions)
}

func TestTwoWinsLiftLossStreak(t *testing.T) {
	p := setupProtection(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.RecordOutcome(-50, 10000))
	}
	require.NoError(t, p.RecordOutcome(100, 10000))
	require.NoError(t, p.RecordOutcome(100, 10000))

	status, err := p.Status()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, status.RiskMultiplier, 1e-9)
	assert.Equal(t, 0, status.MaxPositions)
}

func TestSingleWinDoesNotLift(t *testing.T) {
	p := setupProtection(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.RecordOutcome(-50, 10000))
	}
	require.NoError(t, p.RecordOutcome(100, 10000))

	status, err := p.Status()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, status.RiskMultiplier, 1e-9)
}

func TestMonthlyDrawdownPause(t *testing.T) {
	p := setupProtection(t)

	// 6% of 10000 starting equity
	require.NoError(t, p.RecordOutcome(-300, 10000))
	require.NoError(t, p.RecordOutcome(-300, 9700))

	status, err := p.Status()
	require.NoError(t, err)
	assert.True(t, status.IsPaused)
	assert.False(t, status.IsStopped)
}

func TestMonthlyDrawdownStop(t *testing.T) {
	p := setupProtection(t)

	require.NoError(t, p.RecordOutcome(-600, 10000))
	require.NoError(t, p.RecordOutcome(-500, 9400))

	status, err := p.Status()
	require.NoError(t, err)
	assert.True(t, status.IsStopped)
}

func TestStaggeredRecoveryAfterFiveLosses(t *testing.T) {
	p := setupProtection(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.RecordOutcome(-50, 10000))
	}

	status, err := p.Status()
	require.NoError(t, err)
	require.InDelta(t, 0.5, status.RiskMultiplier, 1e-9)
	require.Equal(t, 1, status.MaxPositions)

	// Two wins restore full risk, the position cap stays
	require.NoError(t, p.RecordOutcome(100, 10000))
	require.NoError(t, p.RecordOutcome(100, 10000))

	status, err = p.Status()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, status.RiskMultiplier, 1e-9)
	assert.Equal(t, 1, status.MaxPositions)

	// The third win restores the position count
	require.NoError(t, p.RecordOutcome(100, 10000))

	status, err = p.Status()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, status.RiskMultiplier, 1e-9)
	assert.Equal(t, 0, status.MaxPositions)
}

func TestPauseLiftsAtMonthRollover(t *testing.T) {
	p := setupProtection(t)

	require.NoError(t, p.RecordOutcome(-300, 10000))
	require.NoError(t, p.RecordOutcome(-300, 9700))

	status, err := p.Status()
	require.NoError(t, err)
	require.True(t, status.IsPaused)

	// Wins inside the month do not lift the pause
	for i := 0; i < 3; i++ {
		require.NoError(t, p.RecordOutcome(300, 9400))
	}
	status, err = p.Status()
	require.NoError(t, err)
	assert.True(t, status.IsPaused)

	p.now = func() time.Time { return time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, p.RecordOutcome(50, 10000))

	status, err = p.Status()
	require.NoError(t, err)
	assert.False(t, status.IsPaused)
}

func TestStopSurvivesMonthRollover(t *testing.T) {
	p := setupProtection(t)

	require.NoError(t, p.RecordOutcome(-600, 10000))
	require.NoError(t, p.RecordOutcome(-500, 9400))

	status, err := p.Status()
	require.NoError(t, err)
	require.True(t, status.IsStopped)

	// A new month does not lift the stop
	p.now = func() time.Time { return time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, p.RecordOutcome(50, 8900))

	status, err = p.Status()
	require.NoError(t, err)
	assert.True(t, status.IsStopped)
	assert.False(t, status.IsPaused)

	// Only an operator reset clears it
	require.NoError(t, p.Reset())

	status, err = p.Status()
	require.NoError(t, err)
	assert.False(t, status.IsStopped)
	assert.InDelta(t, 1.0, status.RiskMultiplier, 1e-9)
	assert.Equal(t, 0, status.MaxPositions)
}
