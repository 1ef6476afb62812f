package domain

import "time"

// OrderIntent is a concrete instruction derived from an admitted signal,
// ready for gateway submission. Quantity is always positive; direction is
// carried by Side.
type OrderIntent struct {
	Symbol        string    // Leg symbol (e.g., "AAPL")
	Side          OrderSide // BUY or SELL
	Quantity      int64     // Number of shares, always > 0
	Type          OrderType // MARKET or LIMIT
	LimitPrice    float64   // Only meaningful when Type is LIMIT
	CorrelationID int64     // Unique, monotonically assigned, never reused
	ClientOrderID string    // UUID stamped at submission time, used by journal and gateway
	PairName      string    // Pair the intent belongs to, for journaling and logs
}

// PendingOrder tracks a submitted intent until it reaches a terminal state.
type PendingOrder struct {
	Intent      OrderIntent // The originating intent
	State       OrderStatus // Current lifecycle state
	FilledQty   int64       // Cumulative filled quantity reported so far
	SubmittedAt time.Time   // When the gateway accepted the submission
	LastUpdate  time.Time   // Last status callback for this order
}

// Fill is a journaled execution event applied to the ledger. ID is the
// journal row ID, 0 until persisted. Quantity is always positive.
type Fill struct {
	ID            int64     `json:"id"`
	CorrelationID int64     `json:"correlation_id"`
	PairName      string    `json:"pair_name"`
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Quantity      int64     `json:"quantity"`
	Price         float64   `json:"price"`
	FilledAt      time.Time `json:"filled_at"`
}

// OrderRecord is the journal's view of an order across its lifecycle,
// retained after the in-memory pending entry is removed.
type OrderRecord struct {
	CorrelationID int64       `json:"correlation_id"`
	ClientOrderID string      `json:"client_order_id"`
	PairName      string      `json:"pair_name"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Quantity      int64       `json:"quantity"`
	Type          OrderType   `json:"type"`
	LimitPrice    float64     `json:"limit_price,omitempty"`
	Status        OrderStatus `json:"status"`
	FilledQty     int64       `json:"filled_qty"`
	AvgFillPrice  float64     `json:"avg_fill_price"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
