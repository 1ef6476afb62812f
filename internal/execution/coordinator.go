package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/ledger"
	"statArbExecutor/internal/ports"
	"statArbExecutor/internal/risk"
)

// State is the coordinator's lifecycle state.
type State string

const (
	StateIdle     State = "Idle"
	StateRunning  State = "Running"
	StateStopping State = "Stopping"
	StateStopped  State = "Stopped"
)

// RiskStatus bundles the gate view exposed to monitoring.
type RiskStatus struct {
	State          domain.RiskState `json:"state"`
	Limits         risk.Limits      `json:"limits"`
	TradingAllowed bool             `json:"trading_allowed"`
	HaltReason     string           `json:"halt_reason,omitempty"`
}

// Stats counts pipeline outcomes since startup. Rejected covers both
// structural validation failures and risk-gate rejections.
type Stats struct {
	SignalsAdmitted int64 `json:"signals_admitted"`
	SignalsRejected int64 `json:"signals_rejected"`
	OrdersSubmitted int64 `json:"orders_submitted"`
	FillsApplied    int64 `json:"fills_applied"`
}

// Coordinator orchestrates the signal-to-order pipeline: structural
// validation, risk gating, order synthesis, gateway submission, and the
// fill-driven ledger updates arriving through gateway callbacks.
//
// It is the single mutual-exclusion boundary of the execution core: every
// signal decision and every callback mutation runs under one mutex, so a
// risk decision always sees a consistent ledger snapshot. The ledger and
// gate themselves are unsynchronized and must only be touched through here.
type Coordinator struct {
	logger  ports.Logger
	gateway ports.OrderGateway
	journal ports.ExecutionJournal
	ledger  *ledger.Ledger
	gate    *risk.Gate

	mu                sync.Mutex
	state             State
	connected         bool
	riskState         domain.RiskState
	pending           map[int64]*domain.PendingOrder
	nextCorrelationID int64
	stats             Stats

	done chan struct{}
}

// NewCoordinator creates the execution coordinator.
// The journal may be nil; execution then runs without an audit trail.
func NewCoordinator(logger ports.Logger, gateway ports.OrderGateway, journal ports.ExecutionJournal, l *ledger.Ledger, gate *risk.Gate) (*Coordinator, error) {
	if logger == nil || gateway == nil || l == nil || gate == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for Coordinator", ports.ErrConfigurationError)
	}
	return &Coordinator{
		logger:            logger,
		gateway:           gateway,
		journal:           journal,
		ledger:            l,
		gate:              gate,
		state:             StateIdle,
		pending:           make(map[int64]*domain.PendingOrder),
		nextCorrelationID: 1,
		done:              make(chan struct{}),
	}, nil
}

// Start registers the coordinator as the gateway's callback handler and
// begins accepting signals. Valid only from the Idle state.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("cannot start coordinator from state %s", c.state)
	}
	c.gateway.SetHandler(c)
	c.riskState = c.ledger.RiskState()
	c.state = StateRunning
	c.logger.Info(ctx, "Execution coordinator started")
	return nil
}

// Stop halts signal intake and clears local pending-order bookkeeping.
// Orders already at the gateway are not cancelled; they resolve naturally
// via fill or cancel notifications, which will find no pending entry.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	cleared := len(c.pending)
	c.pending = make(map[int64]*domain.PendingOrder)
	c.state = StateStopped
	c.mu.Unlock()

	close(c.done)
	c.logger.Info(ctx, "Execution coordinator stopped", map[string]interface{}{"clearedPending": cleared})
}

// Done is closed once the coordinator has stopped.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// HandleSignal runs the full admission pipeline for one trade signal.
// Every failure is local: the signal is dropped and ingestion continues.
func (c *Coordinator) HandleSignal(ctx context.Context, signal *domain.TradeSignal) {
	op := "handleSignal"
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		c.logger.Warn(ctx, op+": coordinator not running, ignoring signal", map[string]interface{}{
			"state": c.state,
			"pair":  signal.PairName,
		})
		return
	}

	// Structural validation happens before any risk evaluation.
	if err := signal.Validate(); err != nil {
		c.stats.SignalsRejected++
		c.logger.Warn(ctx, op+": structurally invalid signal", map[string]interface{}{
			"pair":   signal.PairName,
			"reason": err.Error(),
		})
		return
	}

	if err := c.gate.Evaluate(ctx, signal, c.riskState); err != nil {
		c.stats.SignalsRejected++
		c.logger.Info(ctx, op+": signal rejected by risk gate", map[string]interface{}{
			"pair":       signal.PairName,
			"signalType": signal.SignalType,
			"reason":     err.Error(),
		})
		return
	}
	c.stats.SignalsAdmitted++

	pairPos := c.ledger.PairPosition(signal.PairName, signal.SymbolA, signal.SymbolB)
	intents, err := SynthesizeOrders(signal, pairPos)
	if err != nil {
		c.logger.Warn(ctx, op+": could not synthesize orders", map[string]interface{}{
			"pair":       signal.PairName,
			"signalType": signal.SignalType,
			"reason":     err.Error(),
		})
		return
	}
	if len(intents) == 0 {
		c.logger.Debug(ctx, op+": signal requires no orders", map[string]interface{}{
			"pair":       signal.PairName,
			"signalType": signal.SignalType,
		})
		return
	}

	for _, intent := range intents {
		intent.CorrelationID = c.nextCorrelationID
		c.nextCorrelationID++
		intent.ClientOrderID = uuid.NewString()

		corrID, err := c.gateway.Submit(ctx, intent)
		if err != nil {
			// No pending entry is registered for a failed submission.
			c.logger.Error(ctx, err, op+": order submission failed", map[string]interface{}{
				"symbol":   intent.Symbol,
				"side":     intent.Side,
				"quantity": intent.Quantity,
			})
			continue
		}

		now := time.Now().UTC()
		po := &domain.PendingOrder{
			Intent:      intent,
			State:       domain.StatusSubmitted,
			SubmittedAt: now,
			LastUpdate:  now,
		}
		c.pending[corrID] = po
		c.stats.OrdersSubmitted++
		c.journalRecordOrder(ctx, po)

		c.logger.Info(ctx, op+": order submitted", map[string]interface{}{
			"correlationID": corrID,
			"symbol":        intent.Symbol,
			"side":          intent.Side,
			"quantity":      intent.Quantity,
			"pair":          intent.PairName,
		})
	}
}

// OnOrderStatus handles a lifecycle transition reported by the gateway.
// filledQty is cumulative; only the delta since the last report is applied
// to the ledger, so a PartiallyFilled followed by Filled never double-counts.
func (c *Coordinator) OnOrderStatus(ctx context.Context, correlationID int64, status domain.OrderStatus, filledQty, remainingQty int64, avgFillPrice float64) {
	op := "onOrderStatus"
	c.mu.Lock()
	defer c.mu.Unlock()

	po, ok := c.pending[correlationID]
	if !ok {
		c.logger.Debug(ctx, op+": status for unknown order", map[string]interface{}{
			"correlationID": correlationID,
			"status":        status,
		})
		return
	}
	po.LastUpdate = time.Now().UTC()

	c.logger.Info(ctx, op+": order status update", map[string]interface{}{
		"correlationID": correlationID,
		"status":        status,
		"filled":        filledQty,
		"remaining":     remainingQty,
		"avgFillPrice":  avgFillPrice,
	})

	switch status {
	case domain.StatusFilled, domain.StatusPartiallyFilled:
		if delta := filledQty - po.FilledQty; delta > 0 {
			c.applyFill(ctx, po, delta, avgFillPrice)
			po.FilledQty = filledQty
		}
		po.State = status
	case domain.StatusCancelled, domain.StatusRejected:
		// No fill occurred for the cancelled remainder; the ledger is
		// untouched.
		po.State = status
	case domain.StatusSubmitted:
		po.State = status
	}

	c.journalOrderStatus(ctx, correlationID, po.State, po.FilledQty, avgFillPrice)
	if po.State.IsTerminal() {
		delete(c.pending, correlationID)
	}
}

// OnError handles a gateway-side error. The cancellation code drops the
// order's pending entry without touching the ledger; everything else is
// logged and the order left to resolve via status callbacks.
func (c *Coordinator) OnError(ctx context.Context, correlationID int64, code int, msg string) {
	op := "onError"
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Error(ctx, fmt.Errorf("gateway error %d: %s", code, msg), op+": gateway reported error", map[string]interface{}{
		"correlationID": correlationID,
		"code":          code,
	})

	if code != ports.GatewayCodeOrderCancelled {
		return
	}
	po, ok := c.pending[correlationID]
	if !ok {
		return
	}
	delete(c.pending, correlationID)
	c.journalOrderStatus(ctx, correlationID, domain.StatusCancelled, po.FilledQty, 0)
	c.logger.Info(ctx, op+": pending order dropped after gateway cancel", map[string]interface{}{
		"correlationID": correlationID,
		"symbol":        po.Intent.Symbol,
	})
}

// OnConnectionStatus records gateway connectivity for status queries.
func (c *Coordinator) OnConnectionStatus(ctx context.Context, connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()

	if connected {
		c.logger.Info(ctx, "Order gateway connected")
	} else {
		c.logger.Warn(ctx, "Order gateway disconnected")
	}
}

// ApplyMarkPrices feeds fresh mark prices into the ledger and refreshes the
// risk state the gate decides against.
func (c *Coordinator) ApplyMarkPrices(ctx context.Context, prices map[string]float64) {
	if len(prices) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger.MarkToMarket(ctx, prices)
	c.riskState = c.ledger.RiskState()
}

// UpdateRiskLimits replaces the gate's thresholds at runtime.
func (c *Coordinator) UpdateRiskLimits(ctx context.Context, limits risk.Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate.SetLimits(ctx, limits)
}

// ResetDaily zeroes the ledger's daily window and the gate's view of it.
func (c *Coordinator) ResetDaily(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger.ResetDaily(ctx)
	c.riskState = c.ledger.RiskState()
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether signals are currently accepted.
func (c *Coordinator) IsRunning() bool {
	return c.State() == StateRunning
}

// Connected reports the last known gateway connectivity.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PendingCount returns the number of live pending orders.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stats returns a copy of the pipeline counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Positions returns a copy of the current positions map.
func (c *Coordinator) Positions() map[string]domain.PositionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Positions()
}

// PnlSummary returns the aggregate P&L view.
func (c *Coordinator) PnlSummary() domain.PnlSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Summary()
}

// PnlHistory returns a copy of the retained P&L snapshots.
func (c *Coordinator) PnlHistory() []domain.PnlSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.History()
}

// RiskStatus returns the gate's current state, limits and circuit-breaker
// verdict.
func (c *Coordinator) RiskStatus() RiskStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	allowed, reason := c.gate.IsTradingAllowed(c.riskState)
	return RiskStatus{
		State:          c.riskState,
		Limits:         c.gate.Limits(),
		TradingAllowed: allowed,
		HaltReason:     reason,
	}
}

// applyFill pushes one fill through the ledger, refreshes the risk state,
// takes a P&L snapshot and journals both.
// Callers hold the mutex.
func (c *Coordinator) applyFill(ctx context.Context, po *domain.PendingOrder, quantity int64, price float64) {
	c.ledger.ApplyFill(ctx, po.Intent.Symbol, po.Intent.Side, quantity, price)
	c.riskState = c.ledger.RiskState()
	c.stats.FillsApplied++
	snap := c.ledger.Snapshot()

	if c.journal == nil {
		return
	}
	fill := &domain.Fill{
		CorrelationID: po.Intent.CorrelationID,
		PairName:      po.Intent.PairName,
		Symbol:        po.Intent.Symbol,
		Side:          po.Intent.Side,
		Quantity:      quantity,
		Price:         price,
		FilledAt:      time.Now().UTC(),
	}
	if _, err := c.journal.RecordFill(ctx, fill); err != nil {
		c.logger.Error(ctx, err, "Failed to journal fill", map[string]interface{}{
			"correlationID": po.Intent.CorrelationID,
		})
	}
	if err := c.journal.RecordSnapshot(ctx, &snap); err != nil {
		c.logger.Error(ctx, err, "Failed to journal P&L snapshot")
	}
}

// journalRecordOrder persists a submitted order, logging any failure.
// Callers hold the mutex.
func (c *Coordinator) journalRecordOrder(ctx context.Context, po *domain.PendingOrder) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordOrder(ctx, po); err != nil {
		c.logger.Error(ctx, err, "Failed to journal order", map[string]interface{}{
			"correlationID": po.Intent.CorrelationID,
		})
	}
}

// journalOrderStatus persists a status transition, logging any failure.
// Callers hold the mutex.
func (c *Coordinator) journalOrderStatus(ctx context.Context, correlationID int64, status domain.OrderStatus, filledQty int64, avgFillPrice float64) {
	if c.journal == nil {
		return
	}
	if err := c.journal.UpdateOrderStatus(ctx, correlationID, status, filledQty, avgFillPrice); err != nil {
		c.logger.Error(ctx, err, "Failed to journal order status", map[string]interface{}{
			"correlationID": correlationID,
			"status":        status,
		})
	}
}
