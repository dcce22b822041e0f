// Package domain contains the core data models shared across modules.
package domain

import "time"

// Regime labels produced by the regime detector.
const (
	RegimeStrongTrend = "strong_trend"
	RegimeTrending    = "trending"
	RegimeChoppy      = "choppy"
	RegimeBreakout    = "breakout"
)

// Trend directions.
const (
	TrendUp      = "up"
	TrendDown    = "down"
	TrendNeutral = "neutral"
)

// Strategy names.
const (
	StrategyMomentum      = "momentum"
	StrategyMeanReversion = "mean_reversion_rsi"
	StrategyBreakout      = "breakout"
)

// Bar is a single daily OHLCV bar. Timestamp is the trading date at
// midnight UTC.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Signal is a trade candidate produced by a strategy.
type Signal struct {
	ID            string             `json:"id"`
	Symbol        string             `json:"symbol"`
	Strategy      string             `json:"strategy"`
	EntryPrice    float64            `json:"entry_price"`
	StopLoss      float64            `json:"stop_loss"`
	TargetPrice   float64            `json:"target_price"`
	PositionSize  int                `json:"position_size"`
	RiskAmount    float64            `json:"risk_amount"` // EUR
	SignalDate    time.Time          `json:"signal_date"`
	FiltersPassed map[string]string  `json:"filters_passed"`
	Metrics       map[string]float64 `json:"metrics"`
	Score         float64            `json:"score"`
	RegimeBoost   float64            `json:"regime_boost"`
}

// Metric returns a metric value or the given fallback when absent.
func (s *Signal) Metric(key string, fallback float64) float64 {
	if v, ok := s.Metrics[key]; ok {
		return v
	}
	return fallback
}

// RankScore is the ranking score including the regime boost.
func (s *Signal) RankScore() float64 {
	boost := s.RegimeBoost
	if boost == 0 {
		boost = 1.0
	}
	return s.Score * boost
}

// ToPosition converts a sized signal into an open position.
func (s *Signal) ToPosition(regime string) Position {
	return Position{
		Symbol:           s.Symbol,
		Strategy:         s.Strategy,
		Regime:           regime,
		EntryDate:        s.SignalDate,
		EntryPrice:       s.EntryPrice,
		Quantity:         s.PositionSize,
		OriginalQuantity: s.PositionSize,
		StopLoss:         s.StopLoss,
		TargetPrice:      s.TargetPrice,
		HighestPrice:     s.EntryPrice,
		CurrentStop:      s.StopLoss,
		ATR:              s.Metric("atr", 0),
	}
}

// Position is an open holding tracked by the journal and the simulator.
// HighestPrice is the high-water mark of the day highs since entry; the
// trailing and take-profit flags record which exits have armed or fired.
type Position struct {
	Symbol           string    `json:"symbol"`
	Strategy         string    `json:"strategy"`
	Regime           string    `json:"regime"`
	EntryDate        time.Time `json:"entry_date"`
	EntryPrice       float64   `json:"entry_price"`
	Quantity         int       `json:"quantity"`
	OriginalQuantity int       `json:"original_quantity"`
	StopLoss         float64   `json:"stop_loss"`
	TargetPrice      float64   `json:"target_price"`
	HighestPrice     float64   `json:"highest_price"`
	CurrentStop      float64   `json:"current_stop"`
	ATR              float64   `json:"atr"`
	TrailingActive   bool      `json:"trailing_active"`
	BreakevenActive  bool      `json:"breakeven_active"`
	TP1Hit           bool      `json:"tp1_hit"`
	TP1PnL           float64   `json:"tp1_pnl"` // EUR
}

// TradeOutcome records a closed trade with commission-adjusted P&L.
type TradeOutcome struct {
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Regime     string    `json:"regime"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitDate   time.Time `json:"exit_date"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   int       `json:"quantity"`
	ExitReason string    `json:"exit_reason"`
	PnLUSD     float64   `json:"pnl_usd"`
	PnLEUR     float64   `json:"pnl_eur"`
	RMultiple  float64   `json:"r_multiple"`
	WeeksHeld  int       `json:"weeks_held"`
}

// RegimeSnapshot describes the market regime at a point in time.
type RegimeSnapshot struct {
	Regime      string    `json:"regime"`
	ADX         float64   `json:"adx"`
	ATRPercent  float64   `json:"atr_percent"`
	Trend       string    `json:"trend"`
	BBBandwidth float64   `json:"bb_bandwidth"`
	Confidence  float64   `json:"confidence"`
	Price       float64   `json:"price"`
	SMA50       float64   `json:"sma_50"`
	SMA200      float64   `json:"sma_200"`
	Timestamp   time.Time `json:"timestamp"`
}

// CapitalAllocation splits total capital into the stock budget and the
// cash reserve per the stock-allocation setting.
type CapitalAllocation struct {
	Stock float64 `json:"stock"`
	Cash  float64 `json:"cash"`
	Total float64 `json:"total"`
}

// PortfolioPlan is the output of a full pipeline run: the regime, the
// primary strategy for it, and the sized signals to act on.
type PortfolioPlan struct {
	ID              string            `json:"id"`
	AsOf            time.Time         `json:"as_of"`
	Regime          RegimeSnapshot    `json:"regime"`
	PrimaryStrategy string            `json:"primary_strategy"`
	Signals         []Signal          `json:"signals"`
	Capital         float64           `json:"capital"`
	Allocation      CapitalAllocation `json:"capital_allocation"`
	RiskPerTrade    float64           `json:"risk_per_trade"`
	MaxPositions    int               `json:"max_positions"`
	SizingMethod    string            `json:"sizing_method"`
}
