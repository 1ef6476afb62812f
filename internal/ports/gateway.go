package ports

import (
	"context"

	"statArbExecutor/internal/domain"
)

// GatewayHandler is the narrow callback surface the execution core consumes
// from an order gateway. Gateways deliver these asynchronously, potentially
// from their own goroutines; implementations must be safe for that.
type GatewayHandler interface {
	// OnOrderStatus reports a lifecycle transition for a submitted order.
	// filledQty is the cumulative filled quantity, avgFillPrice the average
	// price across all fills so far.
	OnOrderStatus(ctx context.Context, correlationID int64, status domain.OrderStatus, filledQty, remainingQty int64, avgFillPrice float64)
	// OnError reports a gateway-side error tied to an order (or to the
	// session when correlationID is 0).
	OnError(ctx context.Context, correlationID int64, code int, msg string)
	// OnConnectionStatus reports gateway connectivity changes.
	OnConnectionStatus(ctx context.Context, connected bool)
}

// Gateway error codes shared across implementations.
const (
	// GatewayCodeOrderCancelled marks an OnError callback that means the
	// order was cancelled upstream; the pending entry is dropped without
	// any ledger mutation.
	GatewayCodeOrderCancelled = 202
)

// OrderGateway defines the interface for submitting orders to a brokerage.
// The handler is registered one-directionally: the gateway never holds a
// reference to the coordinator beyond this narrow interface.
type OrderGateway interface {
	// SetHandler registers the callback receiver. Must be called before
	// Submit; later calls replace the handler.
	SetHandler(h GatewayHandler)
	// Submit sends an order intent to the brokerage and returns the
	// correlation ID under which status callbacks will arrive (echoing
	// intent.CorrelationID). A returned error means nothing was submitted.
	Submit(ctx context.Context, intent domain.OrderIntent) (int64, error)
	// Cancel requests cancellation of a live order. The result arrives
	// asynchronously via OnOrderStatus or OnError.
	Cancel(ctx context.Context, correlationID int64) error
}

// PriceSource provides current mark prices for mark-to-market passes.
type PriceSource interface {
	// MarkPrice retrieves the current mark price for a given symbol.
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}
