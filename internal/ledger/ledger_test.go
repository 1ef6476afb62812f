package ledger

import (
	"context"
	"testing"
	"time"

	"statArbExecutor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)
	return l
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestApplyFill_ReduceLongRealizesProfit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 150.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 50, 155.0)

	pos, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, int64(50), pos.Quantity)
	assert.InDelta(t, 150.0, pos.AvgPrice, 0.001)
	assert.InDelta(t, 250.0, pos.RealizedPnl, 0.001)
	assert.InDelta(t, 250.0, l.TotalRealizedPnl(), 0.001)
}

func TestApplyFill_CoverShortRealizesProfit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "MSFT", domain.Sell, 200, 300.0)
	l.ApplyFill(ctx, "MSFT", domain.Buy, 100, 295.0)

	pos, ok := l.Position("MSFT")
	require.True(t, ok)
	assert.Equal(t, int64(-100), pos.Quantity)
	assert.InDelta(t, 300.0, pos.AvgPrice, 0.001)
	assert.InDelta(t, 500.0, pos.RealizedPnl, 0.001)
}

func TestApplyFill_CoverAndFlipToLong(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Short 100 at 200, then buy 150 at 190: the first 100 shares cover the
	// short, the remaining 50 open a long at the fill price.
	l.ApplyFill(ctx, "GOOG", domain.Sell, 100, 200.0)
	l.ApplyFill(ctx, "GOOG", domain.Buy, 150, 190.0)

	pos, ok := l.Position("GOOG")
	require.True(t, ok)
	assert.Equal(t, int64(50), pos.Quantity)
	assert.InDelta(t, 190.0, pos.AvgPrice, 0.001)
	assert.InDelta(t, 1000.0, pos.RealizedPnl, 0.001)
}

func TestApplyFill_ReduceAndFlipToShort(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AMD", domain.Buy, 60, 100.0)
	l.ApplyFill(ctx, "AMD", domain.Sell, 100, 110.0)

	pos, ok := l.Position("AMD")
	require.True(t, ok)
	assert.Equal(t, int64(-40), pos.Quantity)
	assert.InDelta(t, 110.0, pos.AvgPrice, 0.001)
	assert.InDelta(t, 600.0, pos.RealizedPnl, 0.001)
}

func TestApplyFill_ExtendingNeverRealizes(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "NVDA", domain.Buy, 100, 10.0)
	l.ApplyFill(ctx, "NVDA", domain.Buy, 100, 20.0)

	pos, ok := l.Position("NVDA")
	require.True(t, ok)
	assert.Equal(t, int64(200), pos.Quantity)
	assert.InDelta(t, 15.0, pos.AvgPrice, 0.001)
	assert.Zero(t, pos.RealizedPnl)
	assert.Zero(t, l.TotalRealizedPnl())
}

func TestApplyFill_FullCloseClearsAvgPrice(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "TSLA", domain.Buy, 100, 150.0)
	l.ApplyFill(ctx, "TSLA", domain.Sell, 100, 160.0)

	pos, ok := l.Position("TSLA")
	require.True(t, ok)
	assert.Equal(t, int64(0), pos.Quantity)
	assert.Zero(t, pos.AvgPrice)
	assert.InDelta(t, 1000.0, pos.RealizedPnl, 0.001)
}

func TestApplyFill_QuantityIsSignedSumOfFills(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	fills := []struct {
		side domain.OrderSide
		qty  int64
	}{
		{domain.Buy, 100},
		{domain.Sell, 30},
		{domain.Sell, 120},
		{domain.Buy, 20},
		{domain.Sell, 45},
		{domain.Buy, 200},
	}

	var want int64
	for i, f := range fills {
		l.ApplyFill(ctx, "INTC", f.side, f.qty, 50.0)
		if f.side == domain.Buy {
			want += f.qty
		} else {
			want -= f.qty
		}
		pos, ok := l.Position("INTC")
		require.True(t, ok)
		assert.Equal(t, want, pos.Quantity, "after fill %d", i)
	}
}

func TestRoundTrip_SpreadEnterAndExit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Enter: long 100 A, short 80 B.
	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 150.0)
	l.ApplyFill(ctx, "MSFT", domain.Sell, 80, 300.0)

	// Exit: flatten both legs.
	l.ApplyFill(ctx, "AAPL", domain.Sell, 100, 155.0)
	l.ApplyFill(ctx, "MSFT", domain.Buy, 80, 290.0)

	posA, _ := l.Position("AAPL")
	posB, _ := l.Position("MSFT")
	assert.Equal(t, int64(0), posA.Quantity)
	assert.Equal(t, int64(0), posB.Quantity)
	assert.InDelta(t, 500.0, posA.RealizedPnl, 0.001)
	assert.InDelta(t, 800.0, posB.RealizedPnl, 0.001)
	assert.InDelta(t, 1300.0, l.TotalRealizedPnl(), 0.001)
}

func TestMarkToMarket_LongAndShort(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 150.0)
	l.ApplyFill(ctx, "MSFT", domain.Sell, 50, 100.0)

	l.MarkToMarket(ctx, map[string]float64{"AAPL": 160.0, "MSFT": 90.0})

	posA, _ := l.Position("AAPL")
	assert.InDelta(t, 1000.0, posA.UnrealizedPnl, 0.001)
	assert.InDelta(t, 16000.0, posA.MarketValue, 0.001)

	posB, _ := l.Position("MSFT")
	assert.InDelta(t, 500.0, posB.UnrealizedPnl, 0.001)
	assert.InDelta(t, -4500.0, posB.MarketValue, 0.001)

	assert.InDelta(t, 1500.0, l.TotalUnrealizedPnl(), 0.001)
	assert.InDelta(t, 20500.0, l.Exposure(), 0.001)
}

func TestMarkToMarket_MergesPrices(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AAPL", domain.Buy, 10, 100.0)
	l.ApplyFill(ctx, "MSFT", domain.Buy, 10, 200.0)

	l.MarkToMarket(ctx, map[string]float64{"AAPL": 110.0})
	l.MarkToMarket(ctx, map[string]float64{"MSFT": 210.0})

	// The AAPL price from the first pass must survive the second.
	posA, _ := l.Position("AAPL")
	assert.InDelta(t, 100.0, posA.UnrealizedPnl, 0.001)
	assert.InDelta(t, 200.0, l.TotalUnrealizedPnl(), 0.001)
}

func TestDrawdown_TracksPeakMonotonically(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Realize +1000, establishing the peak.
	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 100.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 100, 110.0)
	assert.InDelta(t, 1000.0, l.PeakValue(), 0.001)
	assert.Zero(t, l.CurrentDrawdown())

	// Realize -500: peak holds, drawdown is 50%.
	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 100.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 100, 95.0)
	assert.InDelta(t, 1000.0, l.PeakValue(), 0.001)
	assert.InDelta(t, 50.0, l.CurrentDrawdown(), 0.001)
	assert.InDelta(t, 50.0, l.MaxDrawdown(), 0.001)

	// Recover +250: drawdown shrinks, max drawdown holds.
	l.ApplyFill(ctx, "AAPL", domain.Buy, 50, 100.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 50, 105.0)
	assert.InDelta(t, 25.0, l.CurrentDrawdown(), 0.001)
	assert.InDelta(t, 50.0, l.MaxDrawdown(), 0.001)
}

func TestDrawdown_ZeroWhileNoPositivePeak(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Only losses: the peak never goes positive, so drawdown stays 0.
	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 100.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 100, 90.0)

	assert.InDelta(t, -1000.0, l.TotalPnl(), 0.001)
	assert.Zero(t, l.CurrentDrawdown())
	assert.Zero(t, l.MaxDrawdown())
}

func TestDailyMetrics_RolloverAfter24Hours(t *testing.T) {
	current := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	l, err := New(Config{
		Logger: &mockLogger{},
		Now:    func() time.Time { return current },
	})
	require.NoError(t, err)
	ctx := context.Background()

	// Build a daily peak of 1000 then fall back to 500.
	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 100.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 100, 110.0)
	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 100.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 100, 95.0)
	assert.InDelta(t, 1000.0, l.RiskState().DailyPeak, 0.001)
	assert.InDelta(t, 50.0, l.DailyMaxDrawdown(), 0.001)

	// Past the 24h boundary the daily window restarts from the current level.
	current = current.Add(25 * time.Hour)
	l.MarkToMarket(ctx, nil)
	assert.InDelta(t, 500.0, l.RiskState().DailyPeak, 0.001)
	assert.Zero(t, l.DailyMaxDrawdown())
}

func TestResetDaily_ClearsDailyWindowOnly(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 100.0)
	l.ApplyFill(ctx, "AAPL", domain.Sell, 100, 110.0)
	require.InDelta(t, 1000.0, l.DailyPnl(), 0.001)

	l.ResetDaily(ctx)
	assert.Zero(t, l.DailyPnl())
	assert.Zero(t, l.DailyMaxDrawdown())
	// Totals and peak are untouched.
	assert.InDelta(t, 1000.0, l.TotalRealizedPnl(), 0.001)
	assert.InDelta(t, 1000.0, l.PeakValue(), 0.001)
}

func TestResetAll_ClearsEverything(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 150.0)
	l.MarkToMarket(ctx, map[string]float64{"AAPL": 160.0})
	l.Snapshot()

	l.ResetAll(ctx)
	assert.Empty(t, l.Positions())
	assert.Zero(t, l.TotalPnl())
	assert.Zero(t, l.PeakValue())
	assert.Zero(t, l.Exposure())
	assert.Empty(t, l.History())
}

func TestSnapshot_HistoryIsBounded(t *testing.T) {
	l, err := New(Config{Logger: &mockLogger{}, HistoryCap: 5})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		l.ApplyFill(ctx, "AAPL", domain.Buy, 1, float64(100+i))
		l.Snapshot()
	}

	history := l.History()
	require.Len(t, history, 5)
	// The two oldest snapshots were evicted.
	assert.True(t, history[0].Timestamp.Before(history[4].Timestamp) ||
		history[0].Timestamp.Equal(history[4].Timestamp))
}

func TestLeverage(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	assert.Zero(t, l.Leverage())

	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 150.0)
	l.MarkToMarket(ctx, map[string]float64{"AAPL": 160.0})

	exposure := l.Exposure()
	require.Greater(t, exposure, 0.0)
	assert.InDelta(t, exposure/(exposure+l.TotalPnl()), l.Leverage(), 0.001)
}

func TestPairPosition_View(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 150.0)
	l.ApplyFill(ctx, "MSFT", domain.Sell, 80, 300.0)
	l.MarkToMarket(ctx, map[string]float64{"AAPL": 155.0, "MSFT": 295.0})

	pp := l.PairPosition("AAPL_MSFT", "AAPL", "MSFT")
	assert.Equal(t, int64(100), pp.SharesA)
	assert.Equal(t, int64(-80), pp.SharesB)
	assert.InDelta(t, 150.0, pp.AvgPriceA, 0.001)
	assert.InDelta(t, 300.0, pp.AvgPriceB, 0.001)
	// 100*155 + (-80*295)
	assert.InDelta(t, 15500.0-23600.0, pp.MarketValue, 0.001)
	// (155-150)*100 + (300-295)*80
	assert.InDelta(t, 900.0, pp.UnrealizedPnl, 0.001)
}

func TestRiskState_Assembly(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.ApplyFill(ctx, "AAPL", domain.Buy, 100, 150.0)
	l.MarkToMarket(ctx, map[string]float64{"AAPL": 160.0})

	rs := l.RiskState()
	assert.InDelta(t, l.DailyPnl(), rs.DailyPnl, 0.001)
	assert.InDelta(t, l.Exposure(), rs.TotalExposure, 0.001)
	assert.InDelta(t, l.CurrentDrawdown(), rs.CurrentDrawdownPercent, 0.001)
	assert.InDelta(t, l.PeakValue(), rs.PeakValue, 0.001)
}
