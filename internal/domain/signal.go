package domain

import "errors"

// TradeSignal is an actionable instruction from the signal producer to enter
// or exit a two-leg spread. Share counts are signed: positive means buy that
// many shares, negative means sell short.
type TradeSignal struct {
	Envelope
	PairName     string     `json:"pair_name"`
	SymbolA      string     `json:"symbol_a"`
	SymbolB      string     `json:"symbol_b"`
	SignalType   SignalType `json:"signal_type"`
	ZScore       float64    `json:"z_score"`
	HedgeRatio   float64    `json:"hedge_ratio"`
	Confidence   float64    `json:"confidence"`
	PositionSize float64    `json:"position_size"`
	SharesA      int64      `json:"shares_a"`
	SharesB      int64      `json:"shares_b"`
	Volatility   float64    `json:"volatility"`
	Correlation  float64    `json:"correlation"`
}

// Structural validation errors returned by TradeSignal.Validate.
var (
	ErrSignalMissingPair   = errors.New("signal missing pair name or leg symbols")
	ErrSignalNoShares      = errors.New("signal has zero shares on both legs")
	ErrSignalBadConfidence = errors.New("signal confidence outside [0,1]")
)

// Validate performs structural checks only. Risk checks (thresholds against
// limits and current state) are a separate concern and happen after this.
func (s *TradeSignal) Validate() error {
	if s.PairName == "" || s.SymbolA == "" || s.SymbolB == "" {
		return ErrSignalMissingPair
	}
	if s.SharesA == 0 && s.SharesB == 0 {
		return ErrSignalNoShares
	}
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return ErrSignalBadConfidence
	}
	return nil
}
