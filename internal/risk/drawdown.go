package risk

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/modules/settings"
)

// Drawdown protection thresholds.
const (
	lossStreakReduceRisk = 3 // halve risk
	lossStreakOnePos     = 5 // also drop to a single position
	monthlyDDPause       = 6.0
	monthlyDDStop        = 10.0
	winStreakLiftRisk    = 2 // wins that restore full risk
	winStreakLiftOnePos  = 3 // wins that restore the position count
)

// Settings keys for persisted protection state.
const (
	keyConsecutiveLosses = "drawdown_consecutive_losses"
	keyConsecutiveWins   = "drawdown_consecutive_wins"
	keyRiskReduced       = "drawdown_risk_reduced"
	keyOnePosition       = "drawdown_one_position"
	keyMonth             = "drawdown_month"
	keyMonthStartEquity  = "drawdown_month_start_equity"
	keyMonthPnL          = "drawdown_month_pnl"
	keyPaused            = "drawdown_paused"
	keyStopped           = "drawdown_stopped"
)

// ProtectionStatus is what the portfolio pipeline consults before sizing.
type ProtectionStatus struct {
	RiskMultiplier float64  `json:"risk_multiplier"`
	MaxPositions   int      `json:"max_positions"` // 0 = no override
	IsPaused       bool     `json:"is_paused"`
	IsStopped      bool     `json:"is_stopped"`
	Reasons        []string `json:"reasons"`
}

// DrawdownProtection throttles trading after losing streaks and monthly
// drawdowns. State is persisted in settings so it survives restarts.
//
// Escalation: 3 consecutive losses halve risk, 5 also cap positions at
// one, a 6% monthly drawdown pauses new entries, 10% stops trading.
// Recovery is staggered: 2 consecutive wins restore full risk, a third
// restores the position count. The pause lifts at the month rollover;
// the stop lifts only through Reset.
type DrawdownProtection struct {
	settings *settings.Repository
	log      zerolog.Logger
	now      func() time.Time
}

// NewDrawdownProtection creates the protection state machine.
func NewDrawdownProtection(settingsRepo *settings.Repository, log zerolog.Logger) *DrawdownProtection {
	return &DrawdownProtection{
		settings: settingsRepo,
		log:      log.With().Str("component", "drawdown_protection").Logger(),
		now:      time.Now,
	}
}

// RecordOutcome updates the protection state with a closed trade.
// equityEUR is the account equity before the trade's P&L is applied.
func (d *DrawdownProtection) RecordOutcome(pnlEUR, equityEUR float64) error {
	if err := d.rolloverMonth(equityEUR); err != nil {
		return err
	}

	losses, _ := d.settings.GetInt(keyConsecutiveLosses, 0)
	wins, _ := d.settings.GetInt(keyConsecutiveWins, 0)
	monthPnL, _ := d.settings.GetFloat(keyMonthPnL, 0)

	if pnlEUR < 0 {
		losses++
		wins = 0
		if losses >= lossStreakReduceRisk {
			if err := d.settings.SetBool(keyRiskReduced, true); err != nil {
				return err
			}
		}
		if losses >= lossStreakOnePos {
			if err := d.settings.SetBool(keyOnePosition, true); err != nil {
				return err
			}
		}
	} else {
		wins++
		losses = 0
		if wins >= winStreakLiftRisk {
			if err := d.settings.SetBool(keyRiskReduced, false); err != nil {
				return err
			}
		}
		if wins >= winStreakLiftOnePos {
			if err := d.settings.SetBool(keyOnePosition, false); err != nil {
				return err
			}
		}
	}
	monthPnL += pnlEUR

	if err := d.settings.SetInt(keyConsecutiveLosses, losses); err != nil {
		return err
	}
	if err := d.settings.SetInt(keyConsecutiveWins, wins); err != nil {
		return err
	}
	if err := d.settings.SetFloat(keyMonthPnL, monthPnL); err != nil {
		return err
	}

	// Monthly drawdown gates
	startEquity, _ := d.settings.GetFloat(keyMonthStartEquity, equityEUR)
	if startEquity > 0 && monthPnL < 0 {
		ddPercent := -monthPnL / startEquity * 100
		if ddPercent >= monthlyDDStop {
			if err := d.settings.SetBool(keyStopped, true); err != nil {
				return err
			}
			d.log.Error().Float64("drawdown_pct", ddPercent).Msg("Monthly drawdown stop triggered")
		} else if ddPercent >= monthlyDDPause {
			if err := d.settings.SetBool(keyPaused, true); err != nil {
				return err
			}
			d.log.Warn().Float64("drawdown_pct", ddPercent).Msg("Monthly drawdown pause triggered")
		}
	}

	return nil
}

// Status returns the current restrictions.
func (d *DrawdownProtection) Status() (ProtectionStatus, error) {
	status := ProtectionStatus{RiskMultiplier: 1.0}

	riskReduced, err := d.settings.GetBool(keyRiskReduced, false)
	if err != nil {
		return status, err
	}
	onePosition, _ := d.settings.GetBool(keyOnePosition, false)
	paused, _ := d.settings.GetBool(keyPaused, false)
	stopped, _ := d.settings.GetBool(keyStopped, false)

	if riskReduced {
		status.RiskMultiplier = 0.5
		status.Reasons = append(status.Reasons, "losing streak: risk halved")
	}
	if onePosition {
		status.MaxPositions = 1
		status.Reasons = append(status.Reasons, "losing streak: max one position")
	}
	if paused {
		status.IsPaused = true
		status.Reasons = append(status.Reasons, "monthly drawdown pause active")
	}
	if stopped {
		status.IsStopped = true
		status.Reasons = append(status.Reasons, "monthly drawdown stop active")
	}

	return status, nil
}

// Unprotected is a ProtectionStatus source with no restrictions, used by
// the backtester where streak state would be meaningless.
type Unprotected struct{}

// Status always allows full risk.
func (Unprotected) Status() (ProtectionStatus, error) {
	return ProtectionStatus{RiskMultiplier: 1.0}, nil
}

// rolloverMonth resets monthly state when the calendar month changes. The
// pause lifts here; the stop stays until Reset.
func (d *DrawdownProtection) rolloverMonth(equityEUR float64) error {
	current := d.now().Format("2006-01")
	stored, err := d.settings.Get(keyMonth)
	if err != nil {
		return err
	}
	if stored != nil && *stored == current {
		return nil
	}

	if err := d.settings.Set(keyMonth, current); err != nil {
		return err
	}
	if err := d.settings.SetFloat(keyMonthStartEquity, equityEUR); err != nil {
		return err
	}
	if err := d.settings.SetFloat(keyMonthPnL, 0); err != nil {
		return err
	}
	if err := d.settings.SetBool(keyPaused, false); err != nil {
		return err
	}

	d.log.Info().Str("month", current).Msg("Drawdown protection month rolled over")
	return nil
}

// Reset clears all protection state, including the monthly stop. The stop
// never lifts on its own; an operator calls this after reviewing the
// account.
func (d *DrawdownProtection) Reset() error {
	if err := d.settings.SetInt(keyConsecutiveLosses, 0); err != nil {
		return err
	}
	if err := d.settings.SetInt(keyConsecutiveWins, 0); err != nil {
		return err
	}
	if err := d.settings.SetBool(keyRiskReduced, false); err != nil {
		return err
	}
	if err := d.settings.SetBool(keyOnePosition, false); err != nil {
		return err
	}
	if err := d.settings.SetBool(keyPaused, false); err != nil {
		return err
	}
	if err := d.settings.SetBool(keyStopped, false); err != nil {
		return err
	}

	d.log.Info().Msg("Drawdown protection reset")
	return nil
}
