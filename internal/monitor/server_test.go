package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statArbExecutor/internal/domain"
	"statArbExecutor/internal/execution"
	"statArbExecutor/internal/ingest"
	"statArbExecutor/internal/ledger"
	"statArbExecutor/internal/ports"
	"statArbExecutor/internal/risk"
)

type mockLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.record(msg)
}

func (m *mockLogger) record(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

type mockGateway struct {
	handler ports.GatewayHandler
}

func (m *mockGateway) SetHandler(h ports.GatewayHandler) { m.handler = h }

func (m *mockGateway) Submit(ctx context.Context, intent domain.OrderIntent) (int64, error) {
	return intent.CorrelationID, nil
}

func (m *mockGateway) Cancel(ctx context.Context, correlationID int64) error { return nil }

type mockJournal struct {
	fills  []*domain.Fill
	orders []*domain.OrderRecord
}

func (m *mockJournal) RecordOrder(ctx context.Context, o *domain.PendingOrder) error { return nil }

func (m *mockJournal) UpdateOrderStatus(ctx context.Context, correlationID int64, status domain.OrderStatus, filledQty int64, avgFillPrice float64) error {
	return nil
}

func (m *mockJournal) RecordFill(ctx context.Context, f *domain.Fill) (int64, error) { return 1, nil }

func (m *mockJournal) RecordSnapshot(ctx context.Context, s *domain.PnlSnapshot) error { return nil }

func (m *mockJournal) RecentFills(ctx context.Context, limit int) ([]*domain.Fill, error) {
	return m.fills, nil
}

func (m *mockJournal) OrderHistory(ctx context.Context, limit int) ([]*domain.OrderRecord, error) {
	return m.orders, nil
}

func (m *mockJournal) Close() error { return nil }

func entrySignal(signalType domain.SignalType, sharesA, sharesB int64) *domain.TradeSignal {
	return &domain.TradeSignal{
		PairName:    "AAPL_MSFT",
		SymbolA:     "AAPL",
		SymbolB:     "MSFT",
		SignalType:  signalType,
		ZScore:      1.5,
		Confidence:  0.85,
		SharesA:     sharesA,
		SharesB:     sharesB,
		Correlation: 0.7,
		Volatility:  0.2,
	}
}

func newTestServer(t *testing.T, journal ports.ExecutionJournal) (*Server, *execution.Coordinator, *ingest.Ingestor) {
	t.Helper()
	log := &mockLogger{}

	l, err := ledger.New(ledger.Config{Logger: log})
	require.NoError(t, err)
	gate, err := risk.New(risk.DefaultLimits(), log)
	require.NoError(t, err)
	coord, err := execution.NewCoordinator(log, &mockGateway{}, nil, l, gate)
	require.NoError(t, err)
	require.NoError(t, coord.Start(context.Background()))

	ing, err := ingest.New(ingest.Config{Logger: log, Sink: coord})
	require.NoError(t, err)

	srv, err := New(Config{
		Logger:      log,
		Coordinator: coord,
		Ingestor:    ing,
		Journal:     journal,
	})
	require.NoError(t, err)
	return srv, coord, ing
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) (bool, json.RawMessage, *Error) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *Error          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Success, resp.Data, resp.Error
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ok, data, _ := decodeResponse(t, rec)
	assert.True(t, ok)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestStatus_ReflectsCoordinatorState(t *testing.T) {
	srv, coord, _ := newTestServer(t, nil)
	ctx := context.Background()

	coord.HandleSignal(ctx, entrySignal(domain.EnterLongSpread, 100, -80))

	rec := doRequest(t, srv, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ok, data, _ := decodeResponse(t, rec)
	require.True(t, ok)

	var view struct {
		State          string          `json:"state"`
		Running        bool            `json:"running"`
		PendingOrders  int             `json:"pending_orders"`
		TradingAllowed bool            `json:"trading_allowed"`
		Pipeline       execution.Stats `json:"pipeline"`
	}
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, "Running", view.State)
	assert.True(t, view.Running)
	assert.Equal(t, 2, view.PendingOrders)
	assert.True(t, view.TradingAllowed)
	assert.Equal(t, int64(1), view.Pipeline.SignalsAdmitted)
	assert.Equal(t, int64(2), view.Pipeline.OrdersSubmitted)
}

func TestStatus_IncludesHeartbeatAge(t *testing.T) {
	srv, _, ing := newTestServer(t, nil)

	raw := `{"message_id":"hb-1","timestamp":"2024-05-01T10:00:00Z","message_type":"HEARTBEAT"}`
	require.NoError(t, ing.Process(context.Background(), []byte(raw)))

	rec := doRequest(t, srv, http.MethodGet, "/status", "")
	_, data, _ := decodeResponse(t, rec)

	var view struct {
		LastHeartbeat       *string  `json:"last_heartbeat"`
		HeartbeatAgeSeconds *float64 `json:"heartbeat_age_seconds"`
	}
	require.NoError(t, json.Unmarshal(data, &view))
	require.NotNil(t, view.LastHeartbeat)
	require.NotNil(t, view.HeartbeatAgeSeconds)
	assert.GreaterOrEqual(t, *view.HeartbeatAgeSeconds, 0.0)
}

func TestPositions_AfterFills(t *testing.T) {
	srv, coord, _ := newTestServer(t, nil)
	ctx := context.Background()

	coord.HandleSignal(ctx, entrySignal(domain.EnterLongSpread, 100, -80))
	coord.OnOrderStatus(ctx, 1, domain.StatusFilled, 100, 0, 150.0)

	rec := doRequest(t, srv, http.MethodGet, "/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, data, _ := decodeResponse(t, rec)
	var positions map[string]domain.PositionRecord
	require.NoError(t, json.Unmarshal(data, &positions))
	require.Contains(t, positions, "AAPL")
	assert.Equal(t, int64(100), positions["AAPL"].Quantity)
	assert.InDelta(t, 150.0, positions["AAPL"].AvgPrice, 0.001)
}

func TestPnl_SummaryAndBoundedHistory(t *testing.T) {
	srv, coord, _ := newTestServer(t, nil)
	ctx := context.Background()

	// Open 100 long at 150, then sell 50 at 155: realized 250.
	coord.HandleSignal(ctx, entrySignal(domain.EnterLongSpread, 100, -80))
	coord.OnOrderStatus(ctx, 1, domain.StatusFilled, 100, 0, 150.0)
	coord.HandleSignal(ctx, entrySignal(domain.EnterShortSpread, -50, 0))
	coord.OnOrderStatus(ctx, 3, domain.StatusFilled, 50, 0, 155.0)

	rec := doRequest(t, srv, http.MethodGet, "/pnl", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, data, _ := decodeResponse(t, rec)
	var view pnlView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.InDelta(t, 250.0, view.Summary.RealizedPnl, 0.001)
	assert.Len(t, view.History, 2, "one snapshot per applied fill")

	rec = doRequest(t, srv, http.MethodGet, "/pnl?limit=1", "")
	_, data, _ = decodeResponse(t, rec)
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Len(t, view.History, 1)

	rec = doRequest(t, srv, http.MethodGet, "/pnl?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRisk_ReportsLimits(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/risk", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, data, _ := decodeResponse(t, rec)
	var view execution.RiskStatus
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, int64(10000), view.Limits.MaxPositionSize)
	assert.InDelta(t, 0.7, view.Limits.MinConfidence, 0.001)
	assert.True(t, view.TradingAllowed)
}

func TestUpdateLimits_PartialPayload(t *testing.T) {
	srv, coord, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/risk/limits", `{"min_confidence": 0.9}`)
	require.Equal(t, http.StatusOK, rec.Code)

	ok, data, _ := decodeResponse(t, rec)
	require.True(t, ok)
	var limits risk.Limits
	require.NoError(t, json.Unmarshal(data, &limits))
	assert.InDelta(t, 0.9, limits.MinConfidence, 0.001)
	assert.Equal(t, int64(10000), limits.MaxPositionSize, "unnamed thresholds keep their values")

	assert.InDelta(t, 0.9, coord.RiskStatus().Limits.MinConfidence, 0.001)
}

func TestUpdateLimits_RejectsInvalidThresholds(t *testing.T) {
	srv, coord, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/risk/limits", `{"min_confidence": 1.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	ok, _, apiErr := decodeResponse(t, rec)
	assert.False(t, ok)
	require.NotNil(t, apiErr)
	assert.Equal(t, errCodeBadRequest, apiErr.Code)

	assert.InDelta(t, 0.7, coord.RiskStatus().Limits.MinConfidence, 0.001, "rejected payload must not apply")
}

func TestUpdateLimits_RejectsMalformedBody(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/risk/limits", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDaily(t *testing.T) {
	srv, coord, _ := newTestServer(t, nil)
	ctx := context.Background()

	coord.HandleSignal(ctx, entrySignal(domain.EnterLongSpread, 100, -80))
	coord.OnOrderStatus(ctx, 1, domain.StatusFilled, 100, 0, 150.0)
	coord.HandleSignal(ctx, entrySignal(domain.EnterShortSpread, -50, 0))
	coord.OnOrderStatus(ctx, 3, domain.StatusFilled, 50, 0, 155.0)
	require.InDelta(t, 250.0, coord.RiskStatus().State.DailyPnl, 0.001)

	rec := doRequest(t, srv, http.MethodPost, "/reset/daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, coord.RiskStatus().State.DailyPnl)
}

func TestFills_WithJournal(t *testing.T) {
	journal := &mockJournal{
		fills: []*domain.Fill{
			{ID: 1, CorrelationID: 1, Symbol: "AAPL", Side: domain.Buy, Quantity: 100, Price: 150.0},
		},
	}
	srv, _, _ := newTestServer(t, journal)

	rec := doRequest(t, srv, http.MethodGet, "/fills", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, data, _ := decodeResponse(t, rec)
	var fills []*domain.Fill
	require.NoError(t, json.Unmarshal(data, &fills))
	require.Len(t, fills, 1)
	assert.Equal(t, "AAPL", fills[0].Symbol)
}

func TestFills_WithoutJournal(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/fills", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ok, _, apiErr := decodeResponse(t, rec)
	assert.False(t, ok)
	require.NotNil(t, apiErr)
	assert.Equal(t, errCodeNotFound, apiErr.Code)
}

func TestUnknownRoute_UsesEnvelope(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ok, _, apiErr := decodeResponse(t, rec)
	assert.False(t, ok)
	require.NotNil(t, apiErr)
}
