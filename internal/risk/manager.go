// Package risk provides stop placement, position sizing and drawdown
// protection.
package risk

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/compass/internal/domain"
	"github.com/aristath/compass/internal/indicators"
)

const (
	atrStopSwing    = 1.5
	atrStopIntraday = 1.0

	// supportBuffer places stops just under a structural level instead of
	// exactly on it.
	supportBuffer = 0.995

	swingLowLookback = 50
	swingLowWings    = 2 // bars on each side that must be higher

	// MaxPositionPercent caps any single position at a third of capital.
	MaxPositionPercent = 0.33

	// CommissionPerSide is the fixed commission in EUR per fill.
	CommissionPerSide = 1.0

	// Take-profit ladder levels in ATR multiples above entry.
	tp1ATRMultiple = 1.5
	tp2ATRMultiple = 3.0
)

// Manager computes stops and position sizes.
type Manager struct {
	log zerolog.Logger
}

// NewManager creates a risk manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log.With().Str("component", "risk").Logger()}
}

// StopCandidate names one of the stop placement methods.
type StopCandidate struct {
	Method string  `json:"method"`
	Price  float64 `json:"price"`
}

// OptimalStop picks the tightest defensible stop below entry from three
// candidates: an ATR stop, the nearest swing low, and the volume profile's
// value area low (or point of control). Tightest means highest, since all
// candidates sit below entry. Falls back to the ATR stop when no
// structural level qualifies.
func (m *Manager) OptimalStop(entry float64, bars []domain.Bar, profile *indicators.VolumeProfile, intraday bool) (float64, []StopCandidate) {
	var candidates []StopCandidate

	multiple := atrStopSwing
	if intraday {
		multiple = atrStopIntraday
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}

	atrStop := entry * 0.95
	if len(bars) > 15 {
		atrCol := indicators.ATR(highs, lows, closes, 14)
		if atr := atrCol[len(atrCol)-1]; !math.IsNaN(atr) && atr > 0 {
			atrStop = entry - multiple*atr
		}
	}
	candidates = append(candidates, StopCandidate{Method: "atr", Price: atrStop})

	if support, ok := nearestSwingLow(lows, entry); ok {
		candidates = append(candidates, StopCandidate{Method: "support", Price: support * supportBuffer})
	}

	if profile != nil {
		level := 0.0
		switch {
		case profile.VAL > 0 && profile.VAL < entry:
			level = profile.VAL
		case profile.POC > 0 && profile.POC < entry:
			level = profile.POC
		}
		if level > 0 {
			candidates = append(candidates, StopCandidate{Method: "volume_profile", Price: level * supportBuffer})
		}
	}

	best := atrStop
	for _, c := range candidates {
		if c.Price < entry && c.Price > best {
			best = c.Price
		}
	}

	m.log.Debug().
		Float64("entry", entry).
		Float64("stop", best).
		Int("candidates", len(candidates)).
		Msg("Optimal stop selected")
	return best, candidates
}

// nearestSwingLow finds the highest local minimum below entry among the
// recent lows. A local minimum must be lower than the two bars on each
// side of it.
func nearestSwingLow(lows []float64, entry float64) (float64, bool) {
	start := len(lows) - swingLowLookback
	if start < swingLowWings {
		start = swingLowWings
	}

	best := 0.0
	found := false
	for i := start; i < len(lows)-swingLowWings; i++ {
		isLow := true
		for w := 1; w <= swingLowWings; w++ {
			if lows[i] >= lows[i-w] || lows[i] >= lows[i+w] {
				isLow = false
				break
			}
		}
		if !isLow || lows[i] >= entry {
			continue
		}
		if !found || lows[i] > best {
			best = lows[i]
			found = true
		}
	}
	return best, found
}

// TakeProfitAction is the ladder's verdict for a live position.
type TakeProfitAction int

const (
	// TakeProfitNone leaves the position as it is.
	TakeProfitNone TakeProfitAction = iota
	// TakeProfitOne sells half and moves the stop to breakeven.
	TakeProfitOne
	// TakeProfitTwo closes the remainder.
	TakeProfitTwo
)

// CheckTakeProfit evaluates the take-profit ladder for a live position at
// the current price: TP1 at entry + 1.5 ATR, TP2 at entry + 3 ATR. The
// rungs fire in order, so a price through both levels returns TP1 first
// and TP2 on the next check. Positions without an ATR never ladder out.
func (m *Manager) CheckTakeProfit(pos *domain.Position, price float64) TakeProfitAction {
	if pos.ATR <= 0 {
		return TakeProfitNone
	}
	if pos.TP1Hit {
		if price >= pos.EntryPrice+tp2ATRMultiple*pos.ATR {
			return TakeProfitTwo
		}
		return TakeProfitNone
	}
	if price >= pos.EntryPrice+tp1ATRMultiple*pos.ATR {
		return TakeProfitOne
	}
	return TakeProfitNone
}

// SizeRequest carries the inputs for position sizing.
type SizeRequest struct {
	Entry        float64
	Stop         float64
	CapitalEUR   float64
	AvailableEUR float64
	RiskEUR      float64
	Rate         float64 // USD to EUR
	Method       string  // risk_based | slot_based
	Slots        int
}

// SizeResult is the sized position plus its cost accounting.
type SizeResult struct {
	Quantity      int
	ValueUSD      float64
	ValueEUR      float64
	RiskEUR       float64
	CommissionEUR float64
}

// PositionSize sizes a position. Risk-based sizing converts the EUR risk
// budget into shares via the per-share stop distance, then applies the 33%
// single-position cap and the available-capital cap. Slot-based sizing
// splits capital into equal slots.
func (m *Manager) PositionSize(req SizeRequest) SizeResult {
	if req.Entry <= 0 || req.Rate <= 0 {
		return SizeResult{}
	}

	var quantity int
	switch req.Method {
	case "slot_based":
		if req.Slots < 1 {
			req.Slots = 1
		}
		slotEUR := req.CapitalEUR / float64(req.Slots)
		quantity = int(slotEUR / req.Rate / req.Entry)
	default:
		riskPerShare := req.Entry - req.Stop
		if riskPerShare <= 0 {
			return SizeResult{}
		}
		quantity = int(req.RiskEUR / req.Rate / riskPerShare)
	}

	if quantity <= 0 {
		return SizeResult{}
	}

	// Single-position cap: at most a third of capital
	maxValueEUR := req.CapitalEUR * MaxPositionPercent
	if v := req.Entry * float64(quantity) * req.Rate; v > maxValueEUR {
		quantity = int(maxValueEUR / req.Rate / req.Entry)
	}

	// Cannot spend money that is already committed
	if req.AvailableEUR > 0 {
		if v := req.Entry * float64(quantity) * req.Rate; v > req.AvailableEUR {
			quantity = int(req.AvailableEUR / req.Rate / req.Entry)
		}
	}

	if quantity <= 0 {
		return SizeResult{}
	}

	valueUSD := req.Entry * float64(quantity)
	return SizeResult{
		Quantity:      quantity,
		ValueUSD:      valueUSD,
		ValueEUR:      valueUSD * req.Rate,
		RiskEUR:       (req.Entry - req.Stop) * float64(quantity) * req.Rate,
		CommissionEUR: 2 * CommissionPerSide,
	}
}
