package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/ports"
)

// ExecutionSink receives the actionable traffic the ingestor classifies:
// trade signals for the admission pipeline and leg prices for mark-to-market.
type ExecutionSink interface {
	HandleSignal(ctx context.Context, signal *domain.TradeSignal)
	ApplyMarkPrices(ctx context.Context, prices map[string]float64)
}

// Stats counts inbound traffic since startup.
type Stats struct {
	Received      int64     `json:"received"`
	TradeSignals  int64     `json:"trade_signals"`
	Discarded     int64     `json:"discarded"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Config holds configuration for the message ingestor.
type Config struct {
	Logger ports.Logger
	Sink   ExecutionSink
	Now    func() time.Time // Clock override; defaults to time.Now
}

// Ingestor classifies raw producer messages and routes them: trade signals
// into the execution pipeline, position updates into mark-to-market, the
// informational types into the log. A malformed message is discarded and
// never stops intake.
type Ingestor struct {
	logger ports.Logger
	sink   ExecutionSink
	now    func() time.Time

	mu            sync.Mutex
	stats         Stats
	lastHeartbeat time.Time
}

// New creates a message ingestor.
func New(cfg Config) (*Ingestor, error) {
	if cfg.Logger == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("%w: logger and sink are required for Ingestor", ports.ErrConfigurationError)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Ingestor{logger: cfg.Logger, sink: cfg.Sink, now: cfg.Now}, nil
}

// Run subscribes to the feed and dispatches messages until the context is
// cancelled or the feed closes underneath us. Context cancellation is a clean
// shutdown and returns nil; a feed that dies returns ErrFeedClosed.
func (in *Ingestor) Run(ctx context.Context, feed ports.SignalFeed) error {
	handler := func(raw []byte) {
		// Process logs its own failures; intake continues regardless.
		_ = in.Process(ctx, raw)
	}
	errHandler := func(err error) {
		in.logger.Error(ctx, err, "Signal feed error")
	}

	doneCh, stopCh, err := feed.Subscribe(ctx, handler, errHandler)
	if err != nil {
		return fmt.Errorf("failed to subscribe to signal feed: %w", err)
	}
	in.logger.Info(ctx, "Signal intake started")

	select {
	case <-ctx.Done():
		close(stopCh)
		<-doneCh
		in.logger.Info(ctx, "Signal intake stopped")
		return nil
	case <-doneCh:
		return ports.ErrFeedClosed
	}
}

// Process classifies and dispatches one raw message. The returned error is
// for callers that count rejects; every failure is already logged here.
func (in *Ingestor) Process(ctx context.Context, raw []byte) error {
	in.mu.Lock()
	in.stats.Received++
	in.stats.LastMessageAt = in.now()
	in.mu.Unlock()

	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return in.discard(ctx, raw, fmt.Errorf("%w: %v", ports.ErrMalformedMessage, err))
	}
	if err := env.Validate(); err != nil {
		return in.discard(ctx, raw, fmt.Errorf("%w: %v", ports.ErrMalformedMessage, err))
	}

	switch env.MessageType {
	case domain.MsgTradeSignal:
		return in.handleTradeSignal(ctx, raw)
	case domain.MsgPositionUpdate:
		return in.handlePositionUpdate(ctx, raw)
	case domain.MsgPerformanceUpdate:
		return in.handlePerformanceUpdate(ctx, raw)
	case domain.MsgSystemStatus:
		return in.handleSystemStatus(ctx, raw)
	case domain.MsgErrorMessage:
		return in.handleErrorMessage(ctx, raw)
	case domain.MsgHeartbeat:
		return in.handleHeartbeat(ctx, &env)
	default:
		return in.discard(ctx, raw, fmt.Errorf("%w: unknown message type %q", ports.ErrMalformedMessage, env.MessageType))
	}
}

// LastHeartbeat returns the receipt time of the most recent producer
// heartbeat and whether one has arrived at all.
func (in *Ingestor) LastHeartbeat() (time.Time, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastHeartbeat, !in.lastHeartbeat.IsZero()
}

// Stats returns a copy of the intake counters.
func (in *Ingestor) Stats() Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}

func (in *Ingestor) discard(ctx context.Context, raw []byte, err error) error {
	in.mu.Lock()
	in.stats.Discarded++
	in.mu.Unlock()
	in.logger.Warn(ctx, "Discarding inbound message", map[string]interface{}{
		"reason": err.Error(),
		"size":   len(raw),
	})
	return err
}

func (in *Ingestor) handleTradeSignal(ctx context.Context, raw []byte) error {
	var signal domain.TradeSignal
	if err := json.Unmarshal(raw, &signal); err != nil {
		return in.discard(ctx, raw, fmt.Errorf("%w: trade signal: %v", ports.ErrMalformedMessage, err))
	}

	in.mu.Lock()
	in.stats.TradeSignals++
	in.mu.Unlock()

	in.logger.Info(ctx, "Trade signal received", map[string]interface{}{
		"pair":       signal.PairName,
		"signalType": signal.SignalType,
		"zScore":     signal.ZScore,
		"hedgeRatio": signal.HedgeRatio,
		"sharesA":    signal.SharesA,
		"sharesB":    signal.SharesB,
		"confidence": signal.Confidence,
	})
	in.sink.HandleSignal(ctx, &signal)
	return nil
}

func (in *Ingestor) handlePositionUpdate(ctx context.Context, raw []byte) error {
	var update domain.PositionUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return in.discard(ctx, raw, fmt.Errorf("%w: position update: %v", ports.ErrMalformedMessage, err))
	}

	in.logger.Info(ctx, "Position update received", map[string]interface{}{
		"pair":          update.PairName,
		"position":      update.CurrentPosition,
		"sharesA":       update.SharesA,
		"sharesB":       update.SharesB,
		"marketValue":   update.MarketValue,
		"unrealizedPnl": update.UnrealizedPnl,
	})

	// The producer's leg prices double as a mark-to-market source.
	prices := make(map[string]float64, 2)
	if update.SymbolA != "" && update.PriceA > 0 {
		prices[update.SymbolA] = update.PriceA
	}
	if update.SymbolB != "" && update.PriceB > 0 {
		prices[update.SymbolB] = update.PriceB
	}
	if len(prices) > 0 {
		in.sink.ApplyMarkPrices(ctx, prices)
	}
	return nil
}

func (in *Ingestor) handlePerformanceUpdate(ctx context.Context, raw []byte) error {
	var update domain.PerformanceUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return in.discard(ctx, raw, fmt.Errorf("%w: performance update: %v", ports.ErrMalformedMessage, err))
	}

	in.logger.Info(ctx, "Performance update received", map[string]interface{}{
		"totalPnl":       update.TotalPnl,
		"dailyPnl":       update.DailyPnl,
		"totalReturn":    update.TotalReturn,
		"sharpeRatio":    update.SharpeRatio,
		"maxDrawdown":    update.MaxDrawdown,
		"totalPositions": update.TotalPositions,
		"activePairs":    update.ActivePairs,
		"cashBalance":    update.CashBalance,
	})
	return nil
}

func (in *Ingestor) handleSystemStatus(ctx context.Context, raw []byte) error {
	var status domain.SystemStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return in.discard(ctx, raw, fmt.Errorf("%w: system status: %v", ports.ErrMalformedMessage, err))
	}

	in.logger.Info(ctx, "System status received", map[string]interface{}{
		"component": status.Component,
		"status":    status.Status,
		"uptime":    status.UptimeSeconds,
		"cpu":       status.CPUUsagePercent,
		"memoryMB":  status.MemoryUsageMB,
		"message":   status.Message,
	})
	return nil
}

func (in *Ingestor) handleErrorMessage(ctx context.Context, raw []byte) error {
	var em domain.ErrorMessage
	if err := json.Unmarshal(raw, &em); err != nil {
		return in.discard(ctx, raw, fmt.Errorf("%w: error message: %v", ports.ErrMalformedMessage, err))
	}

	fields := map[string]interface{}{
		"errorType": em.ErrorType,
		"errorCode": em.ErrorCode,
		"severity":  em.Severity,
		"component": em.Component,
	}
	if em.PairName != "" {
		fields["pair"] = em.PairName
	}
	if strings.EqualFold(em.Severity, "CRITICAL") {
		in.logger.Error(ctx, fmt.Errorf("producer error: %s", em.ErrorMessage), "Producer reported critical error", fields)
	} else {
		in.logger.Warn(ctx, "Producer reported error: "+em.ErrorMessage, fields)
	}
	return nil
}

func (in *Ingestor) handleHeartbeat(ctx context.Context, env *domain.Envelope) error {
	in.mu.Lock()
	in.lastHeartbeat = in.now()
	in.mu.Unlock()

	in.logger.Debug(ctx, "Heartbeat received", map[string]interface{}{
		"messageID": env.MessageID,
	})
	return nil
}
