package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Gateway Specific Errors
	ErrGatewayUnavailable   = errors.New("order gateway is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the order gateway")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("gateway authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found at the gateway")
	ErrSubmitFailed         = errors.New("failed to submit order")
	ErrCancelFailed         = errors.New("failed to cancel order")

	// Feed Specific Errors
	ErrFeedClosed       = errors.New("signal feed connection closed")
	ErrMalformedMessage = errors.New("malformed inbound message")

	// Journal Specific Errors
	ErrDBConnection = errors.New("journal database connection error")
	ErrQueryFailed  = errors.New("journal query failed")
	ErrUpdateFailed = errors.New("journal update failed")
)
