package binancegw

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Listen keys expire after 60 minutes without a keepalive.
	keepaliveInterval = 25 * time.Minute
	closeStreamWait   = 5 * time.Second
)

// orderRef links a correlation ID to the identifiers the exchange reports
// order updates under.
type orderRef struct {
	correlationID int64
	symbol        string
	clientOrderID string
	exchangeID    int64
	origQty       int64
}

// Gateway implements ports.OrderGateway and ports.PriceSource against the
// Binance futures API using the go-binance library. Order lifecycle events
// arrive on the user data stream and are translated into handler callbacks.
type Gateway struct {
	futuresClient *futures.Client
	logger        ports.Logger

	reconnectMin         time.Duration
	reconnectMax         time.Duration
	maxReconnectAttempts int

	mu       sync.Mutex
	handler  ports.GatewayHandler
	byCorr   map[int64]*orderRef
	byClient map[string]*orderRef

	streamCancel context.CancelFunc
	streamDone   chan struct{}
}

// Config holds configuration specific to the Binance gateway adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger

	ReconnectMin         time.Duration // Default 1s
	ReconnectMax         time.Duration // Default 30s
	MaxReconnectAttempts int           // Default 10, consecutive failures before the stream gives up
}

// New creates a new Binance gateway adapter.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance gateway", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Gateway will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance gateway configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance gateway configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	g := &Gateway{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectMin:         cfg.ReconnectMin,
		reconnectMax:         cfg.ReconnectMax,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		byCorr:               make(map[int64]*orderRef),
		byClient:             make(map[string]*orderRef),
	}
	if g.reconnectMin <= 0 {
		g.reconnectMin = time.Second
	}
	if g.reconnectMax <= 0 {
		g.reconnectMax = 30 * time.Second
	}
	if g.maxReconnectAttempts <= 0 {
		g.maxReconnectAttempts = 10
	}
	return g, nil
}

// SetHandler registers the callback receiver for order and session events.
func (g *Gateway) SetHandler(h ports.GatewayHandler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

// Start verifies API connectivity and opens the user data stream. The stream
// reconnects on its own until ctx is cancelled or Stop is called.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.handler == nil {
		g.mu.Unlock()
		return fmt.Errorf("%w: no callback handler registered", ports.ErrGatewayUnavailable)
	}
	if g.streamCancel != nil {
		g.mu.Unlock()
		return errors.New("user data stream already started")
	}
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.streamCancel = cancel
	g.streamDone = done
	g.mu.Unlock()

	if err := g.Ping(ctx); err != nil {
		cancel()
		g.mu.Lock()
		g.streamCancel = nil
		g.streamDone = nil
		g.mu.Unlock()
		return err
	}

	go g.runUserStream(streamCtx, done)
	return nil
}

// Stop shuts down the user data stream and waits for it to exit.
func (g *Gateway) Stop() {
	g.mu.Lock()
	cancel := g.streamCancel
	done := g.streamDone
	g.streamCancel = nil
	g.streamDone = nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Ping checks the connectivity to the exchange API.
func (g *Gateway) Ping(ctx context.Context) error {
	op := "Ping"
	if err := g.futuresClient.NewPingService().Do(ctx); err != nil {
		return g.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	g.logger.Debug(ctx, op+" successful")
	return nil
}

// Submit sends an order to the exchange under the intent's client order ID.
// Status callbacks arrive via the user data stream.
func (g *Gateway) Submit(ctx context.Context, intent domain.OrderIntent) (int64, error) {
	op := "Submit"
	g.mu.Lock()
	if g.handler == nil {
		g.mu.Unlock()
		return 0, fmt.Errorf("%w: no callback handler registered", ports.ErrGatewayUnavailable)
	}
	if !intent.Side.IsValid() || intent.Quantity <= 0 {
		g.mu.Unlock()
		return 0, fmt.Errorf("%w: side %q quantity %d", ports.ErrInvalidRequest, intent.Side, intent.Quantity)
	}
	// Register before the API call: the stream can report the order before
	// Do returns.
	ref := &orderRef{
		correlationID: intent.CorrelationID,
		symbol:        intent.Symbol,
		clientOrderID: intent.ClientOrderID,
		origQty:       intent.Quantity,
	}
	g.byCorr[intent.CorrelationID] = ref
	g.byClient[intent.ClientOrderID] = ref
	g.mu.Unlock()

	svc := g.futuresClient.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(futures.SideType(intent.Side)).
		Quantity(strconv.FormatInt(intent.Quantity, 10)).
		NewClientOrderID(intent.ClientOrderID)
	if intent.Type == domain.Limit {
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(intent.LimitPrice, 'f', -1, 64))
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		g.mu.Lock()
		delete(g.byCorr, intent.CorrelationID)
		delete(g.byClient, intent.ClientOrderID)
		g.mu.Unlock()
		return 0, g.handleError(ctx, err, op)
	}

	g.mu.Lock()
	ref.exchangeID = order.OrderID
	g.mu.Unlock()

	g.logger.Info(ctx, op+" successful", map[string]interface{}{
		"correlationID": intent.CorrelationID,
		"symbol":        intent.Symbol,
		"side":          intent.Side,
		"quantity":      intent.Quantity,
		"orderID":       order.OrderID,
	})
	return intent.CorrelationID, nil
}

// Cancel requests cancellation of a live order. The terminal status arrives
// via the user data stream.
func (g *Gateway) Cancel(ctx context.Context, correlationID int64) error {
	op := "Cancel"
	g.mu.Lock()
	ref, ok := g.byCorr[correlationID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: order %d", ports.ErrOrderNotFound, correlationID)
	}

	_, err := g.futuresClient.NewCancelOrderService().
		Symbol(ref.symbol).
		OrigClientOrderID(ref.clientOrderID).
		Do(ctx)
	if err != nil {
		return g.handleError(ctx, err, op)
	}

	g.logger.Info(ctx, op+" accepted", map[string]interface{}{"correlationID": correlationID, "symbol": ref.symbol})
	return nil
}

// MarkPrice retrieves the current mark price for a given symbol.
func (g *Gateway) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	op := "MarkPrice"
	tickers, err := g.futuresClient.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, g.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return 0, g.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].MarkPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].MarkPrice, err)
		return 0, g.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// runUserStream owns the user data stream: listen key acquisition, keepalive
// and reconnection with exponential backoff.
func (g *Gateway) runUserStream(ctx context.Context, streamDone chan struct{}) {
	defer close(streamDone)
	op := "UserDataStream"

	b := &backoff.Backoff{
		Min:    g.reconnectMin,
		Max:    g.reconnectMax,
		Factor: 2,
		Jitter: true,
	}
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		listenKey, err := g.futuresClient.NewStartUserStreamService().Do(ctx)
		if err != nil {
			if !g.retryStream(ctx, op, err, b, &attempt) {
				return
			}
			continue
		}

		doneC, stopC, err := futures.WsUserDataServe(listenKey, g.onUserData(ctx), g.onStreamError(ctx))
		if err != nil {
			if !g.retryStream(ctx, op, err, b, &attempt) {
				return
			}
			continue
		}

		attempt = 0
		b.Reset()
		g.logger.Info(ctx, op+": connected")
		g.notifyConnection(ctx, true)

		keepalive := time.NewTicker(keepaliveInterval)
		alive := true
		for alive {
			select {
			case <-keepalive.C:
				if err := g.futuresClient.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
					g.handleError(ctx, err, op+" keepalive")
				}
			case <-doneC:
				keepalive.Stop()
				g.logger.Warn(ctx, op+": connection closed unexpectedly, reconnecting")
				g.notifyConnection(ctx, false)
				alive = false
			case <-ctx.Done():
				keepalive.Stop()
				select {
				case stopC <- struct{}{}:
				default:
				}
				closeCtx, closeCancel := context.WithTimeout(context.Background(), closeStreamWait)
				g.futuresClient.NewCloseUserStreamService().ListenKey(listenKey).Do(closeCtx)
				closeCancel()
				g.notifyConnection(ctx, false)
				g.logger.Info(ctx, op+": stopped")
				return
			}
		}
	}
}

// retryStream logs a stream setup failure and sleeps the backoff delay.
// It reports false when the attempt budget is spent or ctx ended.
func (g *Gateway) retryStream(ctx context.Context, op string, err error, b *backoff.Backoff, attempt *int) bool {
	g.handleError(ctx, err, op+" connect")
	*attempt++
	if *attempt >= g.maxReconnectAttempts {
		g.logger.Error(ctx, err, op+": max reconnection attempts exceeded, giving up", map[string]interface{}{
			"maxAttempts": g.maxReconnectAttempts,
		})
		g.notifyConnection(ctx, false)
		return false
	}

	delay := b.Duration()
	g.logger.Warn(ctx, op+": connection failed, retrying", map[string]interface{}{
		"attempt": *attempt,
		"delay":   delay.String(),
	})
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *Gateway) onUserData(ctx context.Context) func(event *futures.WsUserDataEvent) {
	return func(event *futures.WsUserDataEvent) {
		if event == nil || event.Event != futures.UserDataEventTypeOrderTradeUpdate {
			return
		}
		g.handleOrderTradeUpdate(ctx, event.OrderTradeUpdate)
	}
}

func (g *Gateway) onStreamError(ctx context.Context) func(err error) {
	return func(err error) {
		translated := g.handleError(ctx, err, "UserDataStream")
		g.mu.Lock()
		handler := g.handler
		g.mu.Unlock()
		if handler != nil {
			handler.OnError(ctx, 0, 0, translated.Error())
		}
	}
}

func (g *Gateway) handleOrderTradeUpdate(ctx context.Context, ou futures.WsOrderTradeUpdate) {
	g.mu.Lock()
	ref, ok := g.byClient[ou.ClientOrderID]
	handler := g.handler
	g.mu.Unlock()
	if !ok {
		g.logger.Debug(ctx, "Order update for unknown client order ID", map[string]interface{}{
			"clientOrderID": ou.ClientOrderID,
			"symbol":        ou.Symbol,
			"status":        ou.Status,
		})
		return
	}

	status, known := translateStatus(ou.Status)
	if !known {
		g.logger.Debug(ctx, "Ignoring order update with unmapped status", map[string]interface{}{
			"clientOrderID": ou.ClientOrderID,
			"status":        ou.Status,
		})
		return
	}

	filledQty := parseQty(ou.AccumulatedFilledQty)
	origQty := parseQty(ou.OriginalQty)
	if origQty == 0 {
		origQty = ref.origQty
	}
	remaining := origQty - filledQty
	if remaining < 0 {
		remaining = 0
	}
	avgPrice, _ := strconv.ParseFloat(ou.AveragePrice, 64)

	if status.IsTerminal() {
		g.mu.Lock()
		delete(g.byClient, ref.clientOrderID)
		delete(g.byCorr, ref.correlationID)
		g.mu.Unlock()
	}

	handler.OnOrderStatus(ctx, ref.correlationID, status, filledQty, remaining, avgPrice)
}

func (g *Gateway) notifyConnection(ctx context.Context, connected bool) {
	g.mu.Lock()
	handler := g.handler
	g.mu.Unlock()
	if handler != nil {
		handler.OnConnectionStatus(ctx, connected)
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (g *Gateway) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Bad signature or API key
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrSubmitFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2019, -3005, -3041: // Insufficient margin or balance
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014: // Qty or price outside permissible range
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		g.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	g.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func translateStatus(s futures.OrderStatusType) (domain.OrderStatus, bool) {
	switch s {
	case futures.OrderStatusTypeNew:
		return domain.StatusSubmitted, true
	case futures.OrderStatusTypePartiallyFilled:
		return domain.StatusPartiallyFilled, true
	case futures.OrderStatusTypeFilled:
		return domain.StatusFilled, true
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return domain.StatusCancelled, true
	case futures.OrderStatusTypeRejected:
		return domain.StatusRejected, true
	}
	return "", false
}

// parseQty converts an exchange-reported quantity string to whole shares.
func parseQty(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f))
}
