package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// IsValid reports whether the side is one of the two recognized values.
func (s OrderSide) IsValid() bool {
	return s == Buy || s == Sell
}

// OrderType represents the execution type of an order.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus represents the lifecycle state of a submitted order.
type OrderStatus string

const (
	StatusSubmitted       OrderStatus = "Submitted"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCancelled       OrderStatus = "Cancelled"
	StatusRejected        OrderStatus = "Rejected"
)

// IsTerminal reports whether the status ends the order's lifecycle.
// Terminal orders are removed from pending-order bookkeeping.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// SignalType classifies what a trade signal asks the executor to do.
type SignalType string

const (
	EnterLongSpread  SignalType = "ENTER_LONG_SPREAD"
	EnterShortSpread SignalType = "ENTER_SHORT_SPREAD"
	ExitPosition     SignalType = "EXIT_POSITION"
)

// MessageType classifies inbound messages from the signal producer.
type MessageType string

const (
	MsgTradeSignal       MessageType = "TRADE_SIGNAL"
	MsgPositionUpdate    MessageType = "POSITION_UPDATE"
	MsgPerformanceUpdate MessageType = "PERFORMANCE_UPDATE"
	MsgSystemStatus      MessageType = "SYSTEM_STATUS"
	MsgErrorMessage      MessageType = "ERROR_MESSAGE"
	MsgHeartbeat         MessageType = "HEARTBEAT"
)
