package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/ports"
)

const defaultHistoryCap = 1000

// Config holds configuration for the position ledger.
type Config struct {
	Logger     ports.Logger
	HistoryCap int              // Max retained P&L snapshots; defaults to 1000 when <= 0
	Now        func() time.Time // Clock override; defaults to time.Now
}

// Ledger owns per-symbol position state and ledger-wide P&L, peak/drawdown
// and daily metrics. It performs no I/O and never fails: callers validate
// sides and quantities before calling in.
//
// Methods are not synchronized. The execution coordinator is the single
// mutual-exclusion boundary around ledger reads and writes.
type Ledger struct {
	logger     ports.Logger
	now        func() time.Time
	historyCap int

	positions map[string]*domain.PositionRecord
	prices    map[string]float64

	totalRealizedPnl   float64
	totalUnrealizedPnl float64
	peakValue          float64
	maxDrawdown        float64

	dailyPnl         float64
	dailyPeak        float64
	dailyMaxDrawdown float64
	lastDailyReset   time.Time

	history []domain.PnlSnapshot
}

// New creates a position ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaultHistoryCap
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &Ledger{
		logger:     cfg.Logger,
		now:        cfg.Now,
		historyCap: cfg.HistoryCap,
		positions:  make(map[string]*domain.PositionRecord),
		prices:     make(map[string]float64),
	}
	l.lastDailyReset = l.now()
	return l, nil
}

// ApplyFill applies an executed fill to the symbol's position.
//
// Same-direction fills (or fills on a flat position) extend the position at a
// quantity-weighted average price and never touch realized P&L. Opposing
// fills cover up to the open quantity, realizing P&L on the covered part; any
// remainder opens a new position in the opposite sign at the fill price.
// A position left exactly flat has its average price cleared.
func (l *Ledger) ApplyFill(ctx context.Context, symbol string, side domain.OrderSide, quantity int64, price float64) {
	pos, ok := l.positions[symbol]
	if !ok {
		pos = &domain.PositionRecord{Symbol: symbol}
		l.positions[symbol] = pos
	}
	pos.LastUpdate = l.now()

	switch side {
	case domain.Buy:
		if pos.Quantity >= 0 {
			// Extending or starting a long.
			totalCost := float64(pos.Quantity)*pos.AvgPrice + float64(quantity)*price
			pos.Quantity += quantity
			if pos.Quantity > 0 {
				pos.AvgPrice = totalCost / float64(pos.Quantity)
			} else {
				pos.AvgPrice = 0
			}
		} else if -pos.Quantity >= quantity {
			// Covering part or all of a short.
			realized := (pos.AvgPrice - price) * float64(quantity)
			pos.RealizedPnl += realized
			l.totalRealizedPnl += realized
			pos.Quantity += quantity
			if pos.Quantity == 0 {
				pos.AvgPrice = 0
			}
		} else {
			// Full cover plus a flip into a long at the fill price.
			covered := -pos.Quantity
			realized := (pos.AvgPrice - price) * float64(covered)
			pos.RealizedPnl += realized
			l.totalRealizedPnl += realized
			pos.Quantity = quantity - covered
			pos.AvgPrice = price
		}
	case domain.Sell:
		if pos.Quantity <= 0 {
			// Extending or starting a short.
			totalCost := float64(-pos.Quantity)*pos.AvgPrice + float64(quantity)*price
			pos.Quantity -= quantity
			if pos.Quantity < 0 {
				pos.AvgPrice = totalCost / float64(-pos.Quantity)
			} else {
				pos.AvgPrice = 0
			}
		} else if pos.Quantity >= quantity {
			// Reducing part or all of a long.
			realized := (price - pos.AvgPrice) * float64(quantity)
			pos.RealizedPnl += realized
			l.totalRealizedPnl += realized
			pos.Quantity -= quantity
			if pos.Quantity == 0 {
				pos.AvgPrice = 0
			}
		} else {
			// Full sale plus a flip into a short at the fill price.
			sold := pos.Quantity
			realized := (price - pos.AvgPrice) * float64(sold)
			pos.RealizedPnl += realized
			l.totalRealizedPnl += realized
			pos.Quantity = -(quantity - sold)
			pos.AvgPrice = price
		}
	}

	l.recomputeUnrealized()
	l.updateDrawdownMetrics()
	l.updateDailyMetrics()

	l.logger.Debug(ctx, "Applied fill", map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    price,
		"position": pos.Quantity,
		"avgPrice": pos.AvgPrice,
	})
}

// MarkToMarket merges the supplied prices into the price table, recomputes
// unrealized P&L and market value for every symbol with a known price, and
// refreshes peak/drawdown and daily metrics.
func (l *Ledger) MarkToMarket(ctx context.Context, prices map[string]float64) {
	for symbol, price := range prices {
		l.prices[symbol] = price
	}
	l.recomputeUnrealized()
	l.updateDrawdownMetrics()
	l.updateDailyMetrics()

	l.logger.Debug(ctx, "Marked to market", map[string]interface{}{
		"symbols":       len(prices),
		"unrealizedPnl": l.totalUnrealizedPnl,
	})
}

// Snapshot records and returns an immutable point-in-time P&L snapshot.
// The history is bounded: the oldest entries are evicted past the cap.
func (l *Ledger) Snapshot() domain.PnlSnapshot {
	s := domain.PnlSnapshot{
		TotalPnl:      l.TotalPnl(),
		RealizedPnl:   l.totalRealizedPnl,
		UnrealizedPnl: l.totalUnrealizedPnl,
		Drawdown:      l.CurrentDrawdown(),
		PeakValue:     l.peakValue,
		Timestamp:     l.now(),
	}
	l.history = append(l.history, s)
	if over := len(l.history) - l.historyCap; over > 0 {
		l.history = append(l.history[:0], l.history[over:]...)
	}
	return s
}

// History returns a copy of the retained snapshots, oldest first.
func (l *Ledger) History() []domain.PnlSnapshot {
	out := make([]domain.PnlSnapshot, len(l.history))
	copy(out, l.history)
	return out
}

// Position returns a copy of the symbol's position record.
func (l *Ledger) Position(symbol string) (domain.PositionRecord, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.PositionRecord{}, false
	}
	return *pos, true
}

// Positions returns a copy of every position record keyed by symbol.
func (l *Ledger) Positions() map[string]domain.PositionRecord {
	out := make(map[string]domain.PositionRecord, len(l.positions))
	for symbol, pos := range l.positions {
		out[symbol] = *pos
	}
	return out
}

// PairPosition assembles the live view of both legs of a pair.
func (l *Ledger) PairPosition(pairName, symbolA, symbolB string) domain.PairPosition {
	pp := domain.PairPosition{PairName: pairName, SymbolA: symbolA, SymbolB: symbolB}
	if pos, ok := l.positions[symbolA]; ok {
		pp.SharesA = pos.Quantity
		pp.AvgPriceA = pos.AvgPrice
		if _, priced := l.prices[symbolA]; priced {
			pp.MarketValue += pos.MarketValue
			pp.UnrealizedPnl += pos.UnrealizedPnl
		}
	}
	if pos, ok := l.positions[symbolB]; ok {
		pp.SharesB = pos.Quantity
		pp.AvgPriceB = pos.AvgPrice
		if _, priced := l.prices[symbolB]; priced {
			pp.MarketValue += pos.MarketValue
			pp.UnrealizedPnl += pos.UnrealizedPnl
		}
	}
	return pp
}

// UnrealizedPnl returns the symbol's current unrealized P&L, 0 if unknown.
func (l *Ledger) UnrealizedPnl(symbol string) float64 {
	if pos, ok := l.positions[symbol]; ok {
		return pos.UnrealizedPnl
	}
	return 0
}

// TotalRealizedPnl returns cumulative realized P&L across all symbols.
func (l *Ledger) TotalRealizedPnl() float64 { return l.totalRealizedPnl }

// TotalUnrealizedPnl returns current unrealized P&L across all symbols.
func (l *Ledger) TotalUnrealizedPnl() float64 { return l.totalUnrealizedPnl }

// TotalPnl returns realized plus unrealized P&L.
func (l *Ledger) TotalPnl() float64 { return l.totalRealizedPnl + l.totalUnrealizedPnl }

// CurrentDrawdown returns the percent decline from the all-time peak.
// Always 0 while the peak is not positive.
func (l *Ledger) CurrentDrawdown() float64 {
	if l.peakValue <= 0 {
		return 0
	}
	return (l.peakValue - l.TotalPnl()) / l.peakValue * 100
}

// MaxDrawdown returns the worst drawdown percent ever observed.
func (l *Ledger) MaxDrawdown() float64 { return l.maxDrawdown }

// PeakValue returns the non-decreasing peak of total P&L.
func (l *Ledger) PeakValue() float64 { return l.peakValue }

// DailyPnl returns the total P&L within the current daily window.
func (l *Ledger) DailyPnl() float64 { return l.dailyPnl }

// DailyMaxDrawdown returns the worst drawdown within the daily window.
func (l *Ledger) DailyMaxDrawdown() float64 { return l.dailyMaxDrawdown }

// Exposure returns the sum of absolute market values across symbols with a
// known price. Symbols without a price contribute nothing.
func (l *Ledger) Exposure() float64 {
	var total float64
	for symbol, pos := range l.positions {
		if price, ok := l.prices[symbol]; ok {
			total += math.Abs(float64(pos.Quantity) * price)
		}
	}
	return total
}

// Leverage returns exposure over exposure plus total P&L, 0 with no exposure.
func (l *Ledger) Leverage() float64 {
	exposure := l.Exposure()
	if exposure <= 0 {
		return 0
	}
	return exposure / (exposure + l.TotalPnl())
}

// RiskState assembles the rolling risk view pushed to the gate after every
// fill and mark-to-market pass.
func (l *Ledger) RiskState() domain.RiskState {
	return domain.RiskState{
		DailyPnl:               l.dailyPnl,
		TotalExposure:          l.Exposure(),
		CurrentDrawdownPercent: l.CurrentDrawdown(),
		PeakValue:              l.peakValue,
		DailyPeak:              l.dailyPeak,
		DailyMaxDrawdown:       l.dailyMaxDrawdown,
	}
}

// Summary aggregates the ledger queries exposed for monitoring.
func (l *Ledger) Summary() domain.PnlSummary {
	return domain.PnlSummary{
		RealizedPnl:      l.totalRealizedPnl,
		UnrealizedPnl:    l.totalUnrealizedPnl,
		TotalPnl:         l.TotalPnl(),
		PeakValue:        l.peakValue,
		CurrentDrawdown:  l.CurrentDrawdown(),
		MaxDrawdown:      l.maxDrawdown,
		DailyPnl:         l.dailyPnl,
		DailyMaxDrawdown: l.dailyMaxDrawdown,
		Exposure:         l.Exposure(),
		Leverage:         l.Leverage(),
	}
}

// ResetDaily zeroes the daily metrics and restarts the 24h window.
func (l *Ledger) ResetDaily(ctx context.Context) {
	l.dailyPnl = 0
	l.dailyPeak = 0
	l.dailyMaxDrawdown = 0
	l.lastDailyReset = l.now()
	l.logger.Info(ctx, "Daily metrics reset")
}

// ResetAll clears every position, price, total and the snapshot history.
func (l *Ledger) ResetAll(ctx context.Context) {
	l.positions = make(map[string]*domain.PositionRecord)
	l.prices = make(map[string]float64)
	l.totalRealizedPnl = 0
	l.totalUnrealizedPnl = 0
	l.peakValue = 0
	l.maxDrawdown = 0
	l.dailyPnl = 0
	l.dailyPeak = 0
	l.dailyMaxDrawdown = 0
	l.history = nil
	l.lastDailyReset = l.now()
	l.logger.Info(ctx, "All position and P&L state reset")
}

// recomputeUnrealized refreshes per-symbol unrealized P&L and market value
// for every symbol with a known price, and the ledger-wide unrealized total.
func (l *Ledger) recomputeUnrealized() {
	l.totalUnrealizedPnl = 0
	for symbol, pos := range l.positions {
		price, ok := l.prices[symbol]
		if !ok {
			continue
		}
		pos.MarketValue = float64(pos.Quantity) * price
		switch {
		case pos.Quantity > 0:
			pos.UnrealizedPnl = (price - pos.AvgPrice) * float64(pos.Quantity)
		case pos.Quantity < 0:
			pos.UnrealizedPnl = (pos.AvgPrice - price) * float64(-pos.Quantity)
		default:
			pos.UnrealizedPnl = 0
		}
		l.totalUnrealizedPnl += pos.UnrealizedPnl
	}
}

// updateDrawdownMetrics advances the monotonic peak and the max drawdown.
func (l *Ledger) updateDrawdownMetrics() {
	current := l.TotalPnl()
	if current > l.peakValue {
		l.peakValue = current
	}
	if l.peakValue > 0 {
		drawdown := (l.peakValue - current) / l.peakValue * 100
		if drawdown > l.maxDrawdown {
			l.maxDrawdown = drawdown
		}
	}
}

// updateDailyMetrics rolls the daily window after 24 elapsed hours and
// tracks the daily peak and worst daily drawdown.
func (l *Ledger) updateDailyMetrics() {
	if l.now().Sub(l.lastDailyReset) >= 24*time.Hour {
		l.dailyPnl = 0
		l.dailyPeak = 0
		l.dailyMaxDrawdown = 0
		l.lastDailyReset = l.now()
	}

	current := l.TotalPnl()
	l.dailyPnl = current
	if current > l.dailyPeak {
		l.dailyPeak = current
	}
	if l.dailyPeak > 0 {
		drawdown := (l.dailyPeak - current) / l.dailyPeak * 100
		if drawdown > l.dailyMaxDrawdown {
			l.dailyMaxDrawdown = drawdown
		}
	}
}
