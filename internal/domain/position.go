package domain

import "time"

// PositionRecord is the authoritative per-symbol position state.
// Quantity is signed: long > 0, short < 0, flat == 0. AvgPrice is only
// meaningful while Quantity is nonzero and is cleared to 0 when flat.
type PositionRecord struct {
	Symbol        string    `json:"symbol"`
	Quantity      int64     `json:"quantity"`
	AvgPrice      float64   `json:"avg_price"`
	RealizedPnl   float64   `json:"realized_pnl"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	MarketValue   float64   `json:"market_value"`
	LastUpdate    time.Time `json:"last_update"`
}

// PairPosition is a read-side view of both legs of a pair, used when
// synthesizing exit orders and for monitoring. Market value and unrealized
// P&L cover only legs with a known mark price.
type PairPosition struct {
	PairName      string  `json:"pair_name"`
	SymbolA       string  `json:"symbol_a"`
	SymbolB       string  `json:"symbol_b"`
	SharesA       int64   `json:"shares_a"`
	SharesB       int64   `json:"shares_b"`
	AvgPriceA     float64 `json:"avg_price_a"`
	AvgPriceB     float64 `json:"avg_price_b"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// PnlSnapshot is an immutable point-in-time record of ledger-wide P&L,
// appended to a bounded history ring.
type PnlSnapshot struct {
	TotalPnl      float64   `json:"total_pnl"`
	RealizedPnl   float64   `json:"realized_pnl"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	Drawdown      float64   `json:"drawdown"`
	PeakValue     float64   `json:"peak_value"`
	Timestamp     time.Time `json:"timestamp"`
}

// RiskState is the rolling risk view the gate evaluates signals against.
// It is derived from the ledger after every fill and mark-to-market pass.
type RiskState struct {
	DailyPnl               float64 `json:"daily_pnl"`
	TotalExposure          float64 `json:"total_exposure"`
	CurrentDrawdownPercent float64 `json:"current_drawdown_percent"`
	PeakValue              float64 `json:"peak_value"`
	DailyPeak              float64 `json:"daily_peak"`
	DailyMaxDrawdown       float64 `json:"daily_max_drawdown"`
}

// PnlSummary aggregates the ledger queries the monitor exposes.
type PnlSummary struct {
	RealizedPnl      float64 `json:"realized_pnl"`
	UnrealizedPnl    float64 `json:"unrealized_pnl"`
	TotalPnl         float64 `json:"total_pnl"`
	PeakValue        float64 `json:"peak_value"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	DailyPnl         float64 `json:"daily_pnl"`
	DailyMaxDrawdown float64 `json:"daily_max_drawdown"`
	Exposure         float64 `json:"exposure"`
	Leverage         float64 `json:"leverage"`
}
