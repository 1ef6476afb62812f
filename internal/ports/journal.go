package ports

import (
	"context"

	"statArbExecutor/internal/domain"
)

// ExecutionJournal defines the interface for persisting the execution trail:
// submitted orders, status transitions, fills, and periodic P&L snapshots.
// The journal is an audit record, not the source of truth; write failures are
// logged by callers and never interrupt execution.
type ExecutionJournal interface {
	// RecordOrder persists a newly submitted order.
	RecordOrder(ctx context.Context, o *domain.PendingOrder) error
	// UpdateOrderStatus records a lifecycle transition for an order.
	UpdateOrderStatus(ctx context.Context, correlationID int64, status domain.OrderStatus, filledQty int64, avgFillPrice float64) error
	// RecordFill persists an execution event and returns its assigned ID.
	RecordFill(ctx context.Context, f *domain.Fill) (int64, error)
	// RecordSnapshot persists a point-in-time P&L snapshot.
	RecordSnapshot(ctx context.Context, s *domain.PnlSnapshot) error
	// RecentFills retrieves the most recent fills, newest first, up to limit.
	RecentFills(ctx context.Context, limit int) ([]*domain.Fill, error)
	// OrderHistory retrieves the most recent orders, newest first, up to limit.
	OrderHistory(ctx context.Context, limit int) ([]*domain.OrderRecord, error)
	// Close releases the underlying store.
	Close() error
}
