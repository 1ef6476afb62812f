package risk

import (
	"context"
	"errors"
	"fmt"
	"math"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/ports"
)

// Rejection reasons returned by Evaluate. The first failing check wins;
// later checks are not evaluated.
var (
	ErrConfidenceTooLow   = errors.New("confidence below minimum")
	ErrZScoreTooHigh      = errors.New("z-score beyond maximum")
	ErrPositionTooLarge   = errors.New("leg size above maximum position size")
	ErrDailyLossExceeded  = errors.New("daily loss limit exceeded")
	ErrExposureExceeded   = errors.New("total exposure limit would be exceeded")
	ErrCorrelationExtreme = errors.New("correlation too extreme")
	ErrVolatilityTooHigh  = errors.New("volatility above maximum")
)

// Limits holds the configured risk thresholds. All checks read from here;
// nothing is hardcoded in the gate itself.
type Limits struct {
	MaxPositionSize    int64   `json:"max_position_size"`    // Maximum shares per leg
	MaxDailyLoss       float64 `json:"max_daily_loss"`       // Maximum daily loss in dollars
	MaxTotalExposure   float64 `json:"max_total_exposure"`   // Maximum total exposure in dollars
	MinConfidence      float64 `json:"min_confidence"`       // Minimum signal confidence for execution
	MaxZScore          float64 `json:"max_z_score"`          // Maximum absolute z-score for execution
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"` // Maximum drawdown percentage before halting
	MaxCorrelation     float64 `json:"max_correlation"`      // Absolute correlation beyond which pairs are rejected
	MaxVolatility      float64 `json:"max_volatility"`       // Maximum signal volatility
}

// DefaultLimits returns the standard thresholds used when configuration
// does not override them.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:    10000,
		MaxDailyLoss:       5000.0,
		MaxTotalExposure:   100000.0,
		MinConfidence:      0.7,
		MaxZScore:          3.0,
		MaxDrawdownPercent: 10.0,
		MaxCorrelation:     0.95,
		MaxVolatility:      0.5,
	}
}

// Validate rejects threshold combinations that would leave the gate
// meaningless or permanently closed.
func (l Limits) Validate() error {
	if l.MaxPositionSize <= 0 {
		return errors.New("max_position_size must be positive")
	}
	if l.MaxDailyLoss <= 0 {
		return errors.New("max_daily_loss must be positive")
	}
	if l.MaxTotalExposure <= 0 {
		return errors.New("max_total_exposure must be positive")
	}
	if l.MinConfidence < 0 || l.MinConfidence > 1 {
		return errors.New("min_confidence must be within [0,1]")
	}
	if l.MaxZScore <= 0 {
		return errors.New("max_z_score must be positive")
	}
	if l.MaxDrawdownPercent <= 0 {
		return errors.New("max_drawdown_percent must be positive")
	}
	if l.MaxCorrelation <= 0 || l.MaxCorrelation > 1 {
		return errors.New("max_correlation must be within (0,1]")
	}
	if l.MaxVolatility <= 0 {
		return errors.New("max_volatility must be positive")
	}
	return nil
}

// Gate performs admission control on trade signals. It holds only the
// limits; the rolling risk state is supplied by the caller on every call so
// a decision always reflects the ledger at that instant.
//
// Methods are not synchronized. The execution coordinator is the single
// mutual-exclusion boundary around gate calls and limit replacement.
type Gate struct {
	logger ports.Logger
	limits Limits
}

// New creates a risk gate with the given limits.
func New(limits Limits, logger ports.Logger) (*Gate, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	return &Gate{logger: logger, limits: limits}, nil
}

// Limits returns the currently active thresholds.
func (g *Gate) Limits() Limits {
	return g.limits
}

// SetLimits replaces the active thresholds at runtime.
func (g *Gate) SetLimits(ctx context.Context, limits Limits) {
	g.limits = limits
	g.logger.Info(ctx, "Risk limits updated", map[string]interface{}{
		"maxPositionSize":  limits.MaxPositionSize,
		"maxDailyLoss":     limits.MaxDailyLoss,
		"maxTotalExposure": limits.MaxTotalExposure,
		"minConfidence":    limits.MinConfidence,
		"maxZScore":        limits.MaxZScore,
		"maxDrawdown":      limits.MaxDrawdownPercent,
	})
}

// Evaluate runs the ordered admission checks against a signal and the
// current risk state. A nil return admits the signal; otherwise the error
// wraps the sentinel for the first check that failed.
func (g *Gate) Evaluate(ctx context.Context, signal *domain.TradeSignal, state domain.RiskState) error {
	if signal.Confidence < g.limits.MinConfidence {
		return fmt.Errorf("%w: %.2f < %.2f", ErrConfidenceTooLow, signal.Confidence, g.limits.MinConfidence)
	}
	if math.Abs(signal.ZScore) > g.limits.MaxZScore {
		return fmt.Errorf("%w: |%.2f| > %.2f", ErrZScoreTooHigh, signal.ZScore, g.limits.MaxZScore)
	}
	if absInt64(signal.SharesA) > g.limits.MaxPositionSize {
		return fmt.Errorf("%w: shares A %d > %d", ErrPositionTooLarge, signal.SharesA, g.limits.MaxPositionSize)
	}
	if absInt64(signal.SharesB) > g.limits.MaxPositionSize {
		return fmt.Errorf("%w: shares B %d > %d", ErrPositionTooLarge, signal.SharesB, g.limits.MaxPositionSize)
	}
	if state.DailyPnl < -g.limits.MaxDailyLoss {
		return fmt.Errorf("%w: daily P&L %.2f, limit %.2f", ErrDailyLossExceeded, state.DailyPnl, g.limits.MaxDailyLoss)
	}
	// Proposed exposure uses the share-count proxy; leg prices are not part
	// of the signal, and admission must not block on a price lookup.
	proposed := float64(absInt64(signal.SharesA) + absInt64(signal.SharesB))
	if state.TotalExposure+proposed > g.limits.MaxTotalExposure {
		return fmt.Errorf("%w: %.2f + %.2f > %.2f", ErrExposureExceeded, state.TotalExposure, proposed, g.limits.MaxTotalExposure)
	}
	if math.Abs(signal.Correlation) > g.limits.MaxCorrelation {
		return fmt.Errorf("%w: |%.2f| > %.2f", ErrCorrelationExtreme, signal.Correlation, g.limits.MaxCorrelation)
	}
	if signal.Volatility > g.limits.MaxVolatility {
		return fmt.Errorf("%w: %.2f > %.2f", ErrVolatilityTooHigh, signal.Volatility, g.limits.MaxVolatility)
	}

	g.logger.Debug(ctx, "Signal passed all risk checks", map[string]interface{}{
		"pair":       signal.PairName,
		"signalType": signal.SignalType,
		"confidence": signal.Confidence,
		"zScore":     signal.ZScore,
	})
	return nil
}

// IsTradingAllowed is the circuit breaker, independent of any one signal:
// it reports false while daily loss, total exposure, or drawdown limits are
// breached, along with the reason for the halt.
func (g *Gate) IsTradingAllowed(state domain.RiskState) (bool, string) {
	if state.DailyPnl < -g.limits.MaxDailyLoss {
		return false, "daily loss limit exceeded"
	}
	if state.TotalExposure > g.limits.MaxTotalExposure {
		return false, "total exposure limit exceeded"
	}
	if state.CurrentDrawdownPercent > g.limits.MaxDrawdownPercent {
		return false, "maximum drawdown limit exceeded"
	}
	return true, ""
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
