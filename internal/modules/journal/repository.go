// Package journal provides the trade journal repository: open positions,
// closed trades, signal history and alert deduplication state.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/database"
	"github.com/aristath/compass/internal/domain"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// Repository handles trade journal database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new journal repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "journal").Logger(),
	}
}

// AddTrade records a new open trade and returns its id.
func (r *Repository) AddTrade(p domain.Position) (int64, error) {
	origQty := p.OriginalQuantity
	if origQty == 0 {
		origQty = p.Quantity
	}

	res, err := r.db.Exec(`
		INSERT INTO trading_journal
			(symbol, strategy, regime, entry_date, entry_price, quantity,
			 original_quantity, stop_loss, target_price, current_stop_loss,
			 highest_price, atr, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.Symbol, p.Strategy, p.Regime,
		p.EntryDate.UTC().Format(timestampLayout), p.EntryPrice, p.Quantity,
		origQty, p.StopLoss, p.TargetPrice, p.CurrentStop, p.HighestPrice, p.ATR,
		time.Now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add trade for %s: %w", p.Symbol, err)
	}
	return res.LastInsertId()
}

// OpenPositions returns all trades without an exit.
func (r *Repository) OpenPositions() ([]domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT symbol, COALESCE(strategy, ''), COALESCE(regime, ''),
		       entry_date, entry_price, quantity, COALESCE(original_quantity, quantity),
		       COALESCE(stop_loss, 0), COALESCE(target_price, 0),
		       COALESCE(current_stop_loss, 0), COALESCE(highest_price, 0),
		       COALESCE(atr, 0), COALESCE(trailing_active, 0),
		       COALESCE(breakeven_active, 0), COALESCE(tp1_hit, 0), COALESCE(tp1_pnl, 0)
		FROM trading_journal
		WHERE exit_date IS NULL
		ORDER BY entry_date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var entry string
		if err := rows.Scan(&p.Symbol, &p.Strategy, &p.Regime, &entry, &p.EntryPrice,
			&p.Quantity, &p.OriginalQuantity, &p.StopLoss, &p.TargetPrice, &p.CurrentStop,
			&p.HighestPrice, &p.ATR, &p.TrailingActive, &p.BreakevenActive,
			&p.TP1Hit, &p.TP1PnL); err != nil {
			return nil, err
		}
		ts, err := time.Parse(timestampLayout, entry)
		if err != nil {
			r.log.Warn().Str("symbol", p.Symbol).Str("entry_date", entry).Msg("Unparseable entry date")
		} else {
			p.EntryDate = ts
		}
		if p.CurrentStop == 0 {
			p.CurrentStop = p.StopLoss
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// PositionStop returns the effective stop for an open position:
// the trailing stop when one has been set, otherwise the initial stop.
func (r *Repository) PositionStop(symbol string) (*float64, error) {
	var stop sql.NullFloat64
	err := r.db.QueryRow(`
		SELECT COALESCE(current_stop_loss, stop_loss)
		FROM trading_journal
		WHERE symbol = ? AND exit_date IS NULL
		ORDER BY entry_date DESC LIMIT 1
	`, symbol).Scan(&stop)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stop for %s: %w", symbol, err)
	}
	if !stop.Valid {
		return nil, nil
	}
	return &stop.Float64, nil
}

// UpdatePositionStop moves the trailing stop of an open position.
func (r *Repository) UpdatePositionStop(symbol string, newStop float64, reason string) error {
	return database.WithBusyRetry(func() error {
		_, err := r.db.Exec(`
			UPDATE trading_journal
			SET current_stop_loss = ?,
			    notes = COALESCE(notes, '') || ?,
			    updated_at = ?
			WHERE symbol = ? AND exit_date IS NULL
		`, newStop, stampNote(reason), time.Now().UTC().Format(timestampLayout), symbol)
		if err != nil {
			return fmt.Errorf("failed to update stop for %s: %w", symbol, err)
		}
		return nil
	})
}

// UpdateHighestPrice records a new high-water mark for trailing logic.
func (r *Repository) UpdateHighestPrice(symbol string, highest float64) error {
	_, err := r.db.Exec(`
		UPDATE trading_journal
		SET highest_price = ?, updated_at = ?
		WHERE symbol = ? AND exit_date IS NULL
	`, highest, time.Now().UTC().Format(timestampLayout), symbol)
	if err != nil {
		return fmt.Errorf("failed to update highest price for %s: %w", symbol, err)
	}
	return nil
}

// SetTrailingActive flags an open position as trailing.
func (r *Repository) SetTrailingActive(symbol string) error {
	_, err := r.db.Exec(`
		UPDATE trading_journal
		SET trailing_active = 1, updated_at = ?
		WHERE symbol = ? AND exit_date IS NULL
	`, time.Now().UTC().Format(timestampLayout), symbol)
	if err != nil {
		return fmt.Errorf("failed to flag trailing for %s: %w", symbol, err)
	}
	return nil
}

// ApplyTakeProfitOne books the first ladder rung: the position shrinks to
// the remaining shares, the stop moves to breakeven and the realized half
// is recorded so the final P&L stays whole.
func (r *Repository) ApplyTakeProfitOne(symbol string, remaining int, breakevenStop, tp1PnLEUR float64) error {
	return database.WithBusyRetry(func() error {
		res, err := r.db.Exec(`
			UPDATE trading_journal
			SET quantity = ?, current_stop_loss = ?,
			    breakeven_active = 1, tp1_hit = 1, tp1_pnl = ?,
			    updated_at = ?
			WHERE symbol = ? AND exit_date IS NULL
		`, remaining, breakevenStop, tp1PnLEUR,
			time.Now().UTC().Format(timestampLayout), symbol)
		if err != nil {
			return fmt.Errorf("failed to apply first take-profit for %s: %w", symbol, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("no open position for %s", symbol)
		}
		return nil
	})
}

// ClosePosition marks the open trade for a symbol as exited and clears any
// pending alerts for it.
func (r *Repository) ClosePosition(symbol string, exitPrice float64, exitDate time.Time, reason string) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE trading_journal
			SET exit_price = ?, exit_date = ?, exit_reason = ?, updated_at = ?
			WHERE symbol = ? AND exit_date IS NULL
		`, exitPrice, exitDate.UTC().Format(timestampLayout), reason,
			time.Now().UTC().Format(timestampLayout), symbol)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("no open position for %s", symbol)
		}

		_, err = tx.Exec("DELETE FROM price_alert_sent WHERE symbol = ?", symbol)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to close position %s: %w", symbol, err)
	}

	r.log.Info().
		Str("symbol", symbol).
		Float64("exit_price", exitPrice).
		Str("reason", reason).
		Msg("Position closed")
	return nil
}

// ClosedTrades returns closed trades, most recent first. limit <= 0 returns
// all of them.
func (r *Repository) ClosedTrades(limit int) ([]domain.TradeOutcome, error) {
	query := `
		SELECT symbol, COALESCE(strategy, ''), COALESCE(regime, ''),
		       entry_date, entry_price, quantity,
		       exit_date, exit_price, COALESCE(exit_reason, '')
		FROM trading_journal
		WHERE exit_date IS NOT NULL
		ORDER BY exit_date DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.TradeOutcome
	for rows.Next() {
		var o domain.TradeOutcome
		var entry, exit string
		if err := rows.Scan(&o.Symbol, &o.Strategy, &o.Regime, &entry, &o.EntryPrice,
			&o.Quantity, &exit, &o.ExitPrice, &o.ExitReason); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(timestampLayout, entry); err == nil {
			o.EntryDate = ts
		}
		if ts, err := time.Parse(timestampLayout, exit); err == nil {
			o.ExitDate = ts
		}
		o.PnLUSD = (o.ExitPrice - o.EntryPrice) * float64(o.Quantity)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// SaveSignal appends a signal to the history table.
func (r *Repository) SaveSignal(sig domain.Signal) error {
	_, err := r.db.Exec(`
		INSERT INTO signal_history (symbol, strategy, score, entry_price, stop_loss, target_price, signal_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sig.Symbol, sig.Strategy, sig.RankScore(), sig.EntryPrice, sig.StopLoss, sig.TargetPrice,
		sig.SignalDate.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("failed to save signal for %s: %w", sig.Symbol, err)
	}
	return nil
}

// RecentSignals returns signals recorded within the last N days.
func (r *Repository) RecentSignals(days int) ([]domain.Signal, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UTC().Format(timestampLayout)
	rows, err := r.db.Query(`
		SELECT symbol, COALESCE(strategy, ''), COALESCE(score, 0),
		       COALESCE(entry_price, 0), COALESCE(stop_loss, 0),
		       COALESCE(target_price, 0), signal_date
		FROM signal_history
		WHERE signal_date >= ?
		ORDER BY signal_date DESC, score DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var date string
		if err := rows.Scan(&sig.Symbol, &sig.Strategy, &sig.Score, &sig.EntryPrice,
			&sig.StopLoss, &sig.TargetPrice, &date); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(timestampLayout, date); err == nil {
			sig.SignalDate = ts
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// WasAlertSent reports whether an alert for (symbol, levelType) was already
// sent. Used to avoid repeating stop/target proximity alerts.
func (r *Repository) WasAlertSent(symbol, levelType string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM price_alert_sent WHERE symbol = ? AND level_type = ?",
		symbol, levelType,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check alert state for %s: %w", symbol, err)
	}
	return count > 0, nil
}

// SetAlertSent marks an alert as sent. Idempotent.
func (r *Repository) SetAlertSent(symbol, levelType string) error {
	_, err := r.db.Exec(`
		INSERT INTO price_alert_sent (symbol, level_type)
		VALUES (?, ?)
		ON CONFLICT(symbol, level_type) DO UPDATE SET sent_at = CURRENT_TIMESTAMP
	`, symbol, levelType)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent for %s: %w", symbol, err)
	}
	return nil
}

// ClearAlerts removes all alert state for a symbol.
func (r *Repository) ClearAlerts(symbol string) error {
	_, err := r.db.Exec("DELETE FROM price_alert_sent WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("failed to clear alerts for %s: %w", symbol, err)
	}
	return nil
}

func stampNote(reason string) string {
	if reason == "" {
		return ""
	}
	return "\n[" + time.Now().UTC().Format("2006-01-02") + "] " + reason
}
