package domain

import "errors"

// Envelope carries the fields every inbound message must supply.
// A message missing any of them is discarded before classification.
type Envelope struct {
	MessageID   string      `json:"message_id"`
	Timestamp   string      `json:"timestamp"`
	MessageType MessageType `json:"message_type"`
}

// Validate checks the minimum schema shared by all message types.
func (e *Envelope) Validate() error {
	switch {
	case e.MessageID == "":
		return errors.New("missing message_id")
	case e.Timestamp == "":
		return errors.New("missing timestamp")
	case e.MessageType == "":
		return errors.New("missing message_type")
	}
	return nil
}

// PositionUpdate mirrors the signal producer's view of a pair position.
// Informational only: the local ledger remains authoritative, but the leg
// prices are a usable mark-to-market source.
type PositionUpdate struct {
	Envelope
	PairName        string  `json:"pair_name"`
	SymbolA         string  `json:"symbol_a"`
	SymbolB         string  `json:"symbol_b"`
	CurrentPosition string  `json:"current_position"`
	SharesA         int64   `json:"shares_a"`
	SharesB         int64   `json:"shares_b"`
	MarketValue     float64 `json:"market_value"`
	UnrealizedPnl   float64 `json:"unrealized_pnl"`
	PriceA          float64 `json:"price_a"`
	PriceB          float64 `json:"price_b"`
}

// PerformanceUpdate summarizes the producer's portfolio statistics.
type PerformanceUpdate struct {
	Envelope
	TotalPnl       float64 `json:"total_pnl"`
	DailyPnl       float64 `json:"daily_pnl"`
	TotalReturn    float64 `json:"total_return"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	TotalPositions int     `json:"total_positions"`
	ActivePairs    int     `json:"active_pairs"`
	CashBalance    float64 `json:"cash_balance"`
}

// SystemStatus reports health of a producer-side component.
type SystemStatus struct {
	Envelope
	Status          string  `json:"status"`
	Component       string  `json:"component"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	MemoryUsageMB   float64 `json:"memory_usage_mb"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	Message         string  `json:"message"`
}

// ErrorMessage reports a producer-side failure.
type ErrorMessage struct {
	Envelope
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Severity     string `json:"severity"`
	Component    string `json:"component"`
	PairName     string `json:"pair_name,omitempty"`
}
