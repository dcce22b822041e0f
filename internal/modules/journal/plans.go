package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/compass/internal/domain"
)

// SavePlan persists a portfolio plan. The full plan is msgpack-encoded;
// regime and as-of date are stored alongside for querying.
func (r *Repository) SavePlan(plan domain.PortfolioPlan) error {
	payload, err := msgpack.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan %s: %w", plan.ID, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO portfolio_plans (id, as_of, regime, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			as_of = excluded.as_of,
			regime = excluded.regime,
			payload = excluded.payload
	`, plan.ID, plan.AsOf.UTC().Format(timestampLayout), plan.Regime.Regime, payload)
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.ID, err)
	}

	r.log.Debug().
		Str("plan_id", plan.ID).
		Str("regime", plan.Regime.Regime).
		Int("signals", len(plan.Signals)).
		Msg("Plan saved")
	return nil
}

// LatestPlan returns the most recent plan, or nil when none exists.
func (r *Repository) LatestPlan() (*domain.PortfolioPlan, error) {
	var payload []byte
	err := r.db.QueryRow(`
		SELECT payload FROM portfolio_plans
		ORDER BY as_of DESC LIMIT 1
	`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest plan: %w", err)
	}

	var plan domain.PortfolioPlan
	if err := msgpack.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan payload: %w", err)
	}
	return &plan, nil
}

// PlanForDate returns the plan generated for a specific date, or nil.
func (r *Repository) PlanForDate(asOf time.Time) (*domain.PortfolioPlan, error) {
	var payload []byte
	err := r.db.QueryRow(`
		SELECT payload FROM portfolio_plans
		WHERE as_of = ?
		ORDER BY created_at DESC LIMIT 1
	`, asOf.UTC().Format(timestampLayout)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan for %s: %w", asOf.Format("2006-01-02"), err)
	}

	var plan domain.PortfolioPlan
	if err := msgpack.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan payload: %w", err)
	}
	return &plan, nil
}
