package risk

import (
	"context"
	"errors"
	"testing"

	"statArbExecutor/internal/domain"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func cleanSignal() *domain.TradeSignal {
	return &domain.TradeSignal{
		PairName:    "AAPL_MSFT",
		SymbolA:     "AAPL",
		SymbolB:     "MSFT",
		SignalType:  domain.EnterLongSpread,
		ZScore:      1.5,
		Confidence:  0.85,
		SharesA:     100,
		SharesB:     -80,
		Correlation: 0.7,
		Volatility:  0.2,
	}
}

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := New(DefaultLimits(), &mockLogger{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return gate
}

func TestEvaluate_AdmitsCleanSignal(t *testing.T) {
	gate := newTestGate(t)

	err := gate.Evaluate(context.Background(), cleanSignal(), domain.RiskState{})
	if err != nil {
		t.Errorf("Expected clean signal to be admitted, got %v", err)
	}
}

func TestEvaluate_RejectionReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *domain.TradeSignal)
		state  domain.RiskState
		want   error
	}{
		{
			name:   "low confidence",
			mutate: func(s *domain.TradeSignal) { s.Confidence = 0.5 },
			want:   ErrConfidenceTooLow,
		},
		{
			name:   "z-score too high",
			mutate: func(s *domain.TradeSignal) { s.ZScore = 4.0 },
			want:   ErrZScoreTooHigh,
		},
		{
			name:   "negative z-score too high",
			mutate: func(s *domain.TradeSignal) { s.ZScore = -4.0 },
			want:   ErrZScoreTooHigh,
		},
		{
			name:   "leg A too large",
			mutate: func(s *domain.TradeSignal) { s.SharesA = 15000 },
			want:   ErrPositionTooLarge,
		},
		{
			name:   "leg B too large",
			mutate: func(s *domain.TradeSignal) { s.SharesB = -15000 },
			want:   ErrPositionTooLarge,
		},
		{
			name:   "daily loss breached",
			mutate: func(s *domain.TradeSignal) {},
			state:  domain.RiskState{DailyPnl: -6000},
			want:   ErrDailyLossExceeded,
		},
		{
			name:   "exposure would be breached",
			mutate: func(s *domain.TradeSignal) {},
			state:  domain.RiskState{TotalExposure: 99900},
			want:   ErrExposureExceeded,
		},
		{
			name:   "correlation too extreme",
			mutate: func(s *domain.TradeSignal) { s.Correlation = 0.97 },
			want:   ErrCorrelationExtreme,
		},
		{
			name:   "negative correlation too extreme",
			mutate: func(s *domain.TradeSignal) { s.Correlation = -0.97 },
			want:   ErrCorrelationExtreme,
		},
		{
			name:   "volatility too high",
			mutate: func(s *domain.TradeSignal) { s.Volatility = 0.6 },
			want:   ErrVolatilityTooHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newTestGate(t)
			signal := cleanSignal()
			tt.mutate(signal)

			err := gate.Evaluate(context.Background(), signal, tt.state)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEvaluate_ConfidenceBoundary(t *testing.T) {
	gate := newTestGate(t)
	signal := cleanSignal()

	// Exactly at the minimum is admitted.
	signal.Confidence = 0.7
	if err := gate.Evaluate(context.Background(), signal, domain.RiskState{}); err != nil {
		t.Errorf("Expected confidence at minimum to be admitted, got %v", err)
	}

	// Just below is rejected with the confidence reason.
	signal.Confidence = 0.6999
	err := gate.Evaluate(context.Background(), signal, domain.RiskState{})
	if !errors.Is(err, ErrConfidenceTooLow) {
		t.Errorf("Expected ErrConfidenceTooLow, got %v", err)
	}
}

func TestEvaluate_FirstFailureWins(t *testing.T) {
	gate := newTestGate(t)
	signal := cleanSignal()
	signal.Confidence = 0.1
	signal.ZScore = 9.9
	signal.Volatility = 0.9

	err := gate.Evaluate(context.Background(), signal, domain.RiskState{})
	if !errors.Is(err, ErrConfidenceTooLow) {
		t.Errorf("Expected the confidence check to fail first, got %v", err)
	}
}

func TestIsTradingAllowed(t *testing.T) {
	gate := newTestGate(t)

	tests := []struct {
		name  string
		state domain.RiskState
		want  bool
	}{
		{name: "clean state", state: domain.RiskState{}, want: true},
		{name: "daily loss breach", state: domain.RiskState{DailyPnl: -5001}, want: false},
		{name: "exposure breach", state: domain.RiskState{TotalExposure: 100001}, want: false},
		{name: "drawdown breach", state: domain.RiskState{CurrentDrawdownPercent: 10.5}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := gate.IsTradingAllowed(tt.state)
			if allowed != tt.want {
				t.Errorf("Expected allowed=%v, got %v (reason %q)", tt.want, allowed, reason)
			}
			if !allowed && reason == "" {
				t.Error("Expected a halt reason when trading is not allowed")
			}
		})
	}
}

func TestSetLimits_ReplacesThresholds(t *testing.T) {
	gate := newTestGate(t)
	signal := cleanSignal()
	signal.Confidence = 0.75

	if err := gate.Evaluate(context.Background(), signal, domain.RiskState{}); err != nil {
		t.Fatalf("Expected signal to pass under default limits, got %v", err)
	}

	limits := DefaultLimits()
	limits.MinConfidence = 0.8
	gate.SetLimits(context.Background(), limits)

	err := gate.Evaluate(context.Background(), signal, domain.RiskState{})
	if !errors.Is(err, ErrConfidenceTooLow) {
		t.Errorf("Expected rejection under raised minimum, got %v", err)
	}
}
