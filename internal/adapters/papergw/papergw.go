package papergw

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/ports"
)

// Gateway is an in-memory order gateway for paper trading and replay runs.
// Orders fill at the current table price for the symbol, optionally split
// into a partial fill first; orders on symbols without a price are rejected.
// It also serves as a PriceSource.
//
// All callbacks are delivered from separate goroutines, never from inside
// Submit or Cancel: the coordinator holds its lock across those calls.
type Gateway struct {
	logger       ports.Logger
	delay        time.Duration
	partialRatio float64

	mu      sync.Mutex
	handler ports.GatewayHandler
	prices  map[string]float64
	open    map[int64]domain.OrderIntent

	wg sync.WaitGroup
}

// Config holds configuration for the paper gateway.
type Config struct {
	Logger ports.Logger
	// FillDelay postpones the simulated fill callback, leaving a window in
	// which Cancel can win the race. Zero resolves as soon as the scheduler
	// runs the callback goroutine.
	FillDelay time.Duration
	// PartialFillRatio in (0, 1) reports that fraction of each order as a
	// PartiallyFilled callback before the final Filled callback. Zero fills
	// every order in a single callback.
	PartialFillRatio float64
}

// New creates a paper gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for paper gateway", ports.ErrConfigurationError)
	}
	if cfg.PartialFillRatio != 0 && (cfg.PartialFillRatio < 0 || cfg.PartialFillRatio >= 1) {
		return nil, fmt.Errorf("%w: partial fill ratio %v must be in (0, 1)", ports.ErrConfigurationError, cfg.PartialFillRatio)
	}
	return &Gateway{
		logger:       cfg.Logger,
		delay:        cfg.FillDelay,
		partialRatio: cfg.PartialFillRatio,
		prices:       make(map[string]float64),
		open:         make(map[int64]domain.OrderIntent),
	}, nil
}

// SetHandler registers the callback receiver and reports the simulated
// session as connected.
func (g *Gateway) SetHandler(h ports.GatewayHandler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		h.OnConnectionStatus(context.Background(), true)
	}()
}

// SetPrice updates the simulated market price for one symbol.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	g.prices[symbol] = price
	g.mu.Unlock()
}

// SetPrices updates the simulated market prices for several symbols.
func (g *Gateway) SetPrices(prices map[string]float64) {
	g.mu.Lock()
	for symbol, price := range prices {
		g.prices[symbol] = price
	}
	g.mu.Unlock()
}

// Submit accepts an order and schedules its asynchronous resolution.
func (g *Gateway) Submit(ctx context.Context, intent domain.OrderIntent) (int64, error) {
	g.mu.Lock()
	if g.handler == nil {
		g.mu.Unlock()
		return 0, fmt.Errorf("%w: no callback handler registered", ports.ErrGatewayUnavailable)
	}
	if !intent.Side.IsValid() || intent.Quantity <= 0 {
		g.mu.Unlock()
		return 0, fmt.Errorf("%w: side %q quantity %d", ports.ErrInvalidRequest, intent.Side, intent.Quantity)
	}
	g.open[intent.CorrelationID] = intent
	g.mu.Unlock()

	g.logger.Debug(ctx, "Paper order accepted", map[string]interface{}{
		"correlationID": intent.CorrelationID,
		"symbol":        intent.Symbol,
		"side":          intent.Side,
		"quantity":      intent.Quantity,
	})

	g.wg.Add(1)
	go g.resolve(ctx, intent)
	return intent.CorrelationID, nil
}

// Cancel removes an open order and delivers the cancellation callbacks.
func (g *Gateway) Cancel(ctx context.Context, correlationID int64) error {
	g.mu.Lock()
	intent, ok := g.open[correlationID]
	if ok {
		delete(g.open, correlationID)
	}
	handler := g.handler
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: order %d", ports.ErrOrderNotFound, correlationID)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		handler.OnError(ctx, correlationID, ports.GatewayCodeOrderCancelled, "order cancelled")
		handler.OnOrderStatus(ctx, correlationID, domain.StatusCancelled, 0, intent.Quantity, 0)
	}()
	return nil
}

// MarkPrice returns the current simulated price for a symbol.
func (g *Gateway) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	price, ok := g.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: no price for symbol %s", ports.ErrNotFound, symbol)
	}
	return price, nil
}

// Drain blocks until every scheduled callback has been delivered.
func (g *Gateway) Drain() {
	g.wg.Wait()
}

// resolve fills or rejects an order after the configured delay. The price is
// read at resolution time, not submission time.
func (g *Gateway) resolve(ctx context.Context, intent domain.OrderIntent) {
	defer g.wg.Done()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	_, still := g.open[intent.CorrelationID]
	if still {
		delete(g.open, intent.CorrelationID)
	}
	price, priced := g.prices[intent.Symbol]
	handler := g.handler
	g.mu.Unlock()

	if !still {
		// Cancelled while waiting; Cancel already delivered callbacks.
		return
	}

	if !priced {
		g.logger.Warn(ctx, "Paper order rejected, no price for symbol", map[string]interface{}{
			"correlationID": intent.CorrelationID,
			"symbol":        intent.Symbol,
		})
		handler.OnOrderStatus(ctx, intent.CorrelationID, domain.StatusRejected, 0, intent.Quantity, 0)
		return
	}

	if g.partialRatio > 0 {
		part := int64(math.Round(float64(intent.Quantity) * g.partialRatio))
		if part > 0 && part < intent.Quantity {
			// filledQty is cumulative across callbacks.
			handler.OnOrderStatus(ctx, intent.CorrelationID, domain.StatusPartiallyFilled, part, intent.Quantity-part, price)
		}
	}
	handler.OnOrderStatus(ctx, intent.CorrelationID, domain.StatusFilled, intent.Quantity, 0, price)
}
