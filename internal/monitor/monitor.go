// Package monitor watches open positions against live prices and raises
// stop and target alerts on a cron schedule.
package monitor

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/compass/internal/events"
	"github.com/aristath/compass/internal/modules/journal"
)

// Cron schedules. Positions are checked every 15 minutes during US market
// hours, health is logged hourly.
const (
	positionsSchedule = "*/15 14-21 * * 1-5" // UTC
	healthSchedule    = "0 * * * *"
)

// proximityPercent is how close to a level a price must be before the
// early-warning alert fires.
const proximityPercent = 0.02

// Alert level types, also used as dedup keys in the journal.
const (
	LevelStop       = "stop"
	LevelStopNear   = "stop_near"
	LevelTarget     = "target"
	LevelTargetNear = "target_near"
)

// SnapshotSource supplies the latest price for a symbol.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, symbol string) (float64, error)
}

// Monitor runs the scheduled checks.
type Monitor struct {
	journal   *journal.Repository
	snapshots SnapshotSource
	bus       *events.Bus
	cron      *cron.Cron
	log       zerolog.Logger
}

// New creates a monitor. The bus may be nil when no UI is attached.
func New(journalRepo *journal.Repository, snapshots SnapshotSource, bus *events.Bus, log zerolog.Logger) *Monitor {
	return &Monitor{
		journal:   journalRepo,
		snapshots: snapshots,
		bus:       bus,
		cron:      cron.New(),
		log:       log.With().Str("component", "monitor").Logger(),
	}
}

// Start registers the cron jobs and begins the schedule.
func (m *Monitor) Start() error {
	if _, err := m.cron.AddFunc(positionsSchedule, func() {
		if err := m.CheckPositions(context.Background()); err != nil {
			m.log.Error().Err(err).Msg("Position check failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule position checks: %w", err)
	}

	if _, err := m.cron.AddFunc(healthSchedule, m.logHealth); err != nil {
		return fmt.Errorf("failed to schedule health checks: %w", err)
	}

	m.cron.Start()
	m.log.Info().Msg("Monitor started")
	return nil
}

// Stop halts the schedule and waits for running jobs.
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info().Msg("Monitor stopped")
}

// CheckPositions fetches a snapshot for every open position and raises
// alerts for breached or nearly breached levels. Each alert fires once per
// position lifetime; closing the position clears its alert history.
func (m *Monitor) CheckPositions(ctx context.Context) error {
	positions, err := m.journal.OpenPositions()
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	for _, pos := range positions {
		price, err := m.snapshots.LatestSnapshot(ctx, pos.Symbol)
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No snapshot")
			continue
		}
		if price <= 0 {
			continue
		}

		stop := pos.CurrentStop
		if stop <= 0 {
			stop = pos.StopLoss
		}

		switch {
		case price <= stop:
			m.raise(pos.Symbol, LevelStop, price, stop)
		case price <= stop*(1+proximityPercent):
			m.raise(pos.Symbol, LevelStopNear, price, stop)
		}

		if pos.TargetPrice > 0 {
			switch {
			case price >= pos.TargetPrice:
				m.raise(pos.Symbol, LevelTarget, price, pos.TargetPrice)
			case price >= pos.TargetPrice*(1-proximityPercent):
				m.raise(pos.Symbol, LevelTargetNear, price, pos.TargetPrice)
			}
		}
	}
	return nil
}

// raise publishes an alert unless it was already sent for this position.
func (m *Monitor) raise(symbol, levelType string, price, level float64) {
	sent, err := m.journal.WasAlertSent(symbol, levelType)
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", symbol).Msg("Alert dedup lookup failed")
		return
	}
	if sent {
		return
	}

	if err := m.journal.SetAlertSent(symbol, levelType); err != nil {
		m.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to record alert")
		return
	}

	m.log.Warn().
		Str("symbol", symbol).
		Str("level_type", levelType).
		Float64("price", price).
		Float64("level", level).
		Msg("Price alert")

	if m.bus != nil {
		m.bus.Publish(&events.PriceAlertData{
			Symbol:    symbol,
			LevelType: levelType,
			Price:     price,
			Level:     level,
		})
	}
}

// logHealth records memory and disk pressure so a starved host shows up in
// the logs before SQLite starts timing out.
func (m *Monitor) logHealth() {
	event := m.log.Info()

	if vm, err := mem.VirtualMemory(); err == nil {
		event = event.Float64("mem_used_pct", vm.UsedPercent)
	}
	if du, err := disk.Usage("/"); err == nil {
		event = event.Float64("disk_used_pct", du.UsedPercent)
	}

	event.Msg("Health check")
}
