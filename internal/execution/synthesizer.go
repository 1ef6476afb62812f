package execution

import (
	"errors"
	"fmt"

	"statArbExecutor/internal/domain"
)

// ErrUnknownSignalType is returned for signal types the synthesizer does not
// recognize. The caller logs it and drops the signal; nothing is submitted.
var ErrUnknownSignalType = errors.New("unknown signal type")

// SynthesizeOrders maps an admitted signal plus the live pair position to the
// order intents needed to act on it. It is a pure function: correlation and
// client order IDs are stamped later, at submission time.
//
// All legs use market orders; spread entries trade execution certainty for
// price certainty.
func SynthesizeOrders(signal *domain.TradeSignal, pairPos domain.PairPosition) ([]domain.OrderIntent, error) {
	switch signal.SignalType {
	case domain.EnterLongSpread:
		return longSpreadIntents(signal), nil
	case domain.EnterShortSpread:
		return shortSpreadIntents(signal), nil
	case domain.ExitPosition:
		return exitIntents(signal, pairPos), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignalType, signal.SignalType)
	}
}

// longSpreadIntents builds the legs for a long spread: long A, short B.
func longSpreadIntents(signal *domain.TradeSignal) []domain.OrderIntent {
	var intents []domain.OrderIntent
	if signal.SharesA > 0 {
		intents = append(intents, domain.OrderIntent{
			Symbol:   signal.SymbolA,
			Side:     domain.Buy,
			Quantity: signal.SharesA,
			Type:     domain.Market,
			PairName: signal.PairName,
		})
	}
	if signal.SharesB < 0 {
		intents = append(intents, domain.OrderIntent{
			Symbol:   signal.SymbolB,
			Side:     domain.Sell,
			Quantity: -signal.SharesB,
			Type:     domain.Market,
			PairName: signal.PairName,
		})
	}
	return intents
}

// shortSpreadIntents builds the legs for a short spread: short A, long B.
func shortSpreadIntents(signal *domain.TradeSignal) []domain.OrderIntent {
	var intents []domain.OrderIntent
	if signal.SharesA < 0 {
		intents = append(intents, domain.OrderIntent{
			Symbol:   signal.SymbolA,
			Side:     domain.Sell,
			Quantity: -signal.SharesA,
			Type:     domain.Market,
			PairName: signal.PairName,
		})
	}
	if signal.SharesB > 0 {
		intents = append(intents, domain.OrderIntent{
			Symbol:   signal.SymbolB,
			Side:     domain.Buy,
			Quantity: signal.SharesB,
			Type:     domain.Market,
			PairName: signal.PairName,
		})
	}
	return intents
}

// exitIntents flattens whatever is actually held on each leg. The signal's
// own share fields are ignored: the exit targets the live position, which may
// have drifted from the producer's stale view.
func exitIntents(signal *domain.TradeSignal, pairPos domain.PairPosition) []domain.OrderIntent {
	var intents []domain.OrderIntent
	if pairPos.SharesA != 0 {
		intents = append(intents, offsetIntent(signal.PairName, signal.SymbolA, pairPos.SharesA))
	}
	if pairPos.SharesB != 0 {
		intents = append(intents, offsetIntent(signal.PairName, signal.SymbolB, pairPos.SharesB))
	}
	return intents
}

// offsetIntent builds the market order that takes a signed holding to flat.
func offsetIntent(pairName, symbol string, held int64) domain.OrderIntent {
	side := domain.Sell
	quantity := held
	if held < 0 {
		side = domain.Buy
		quantity = -held
	}
	return domain.OrderIntent{
		Symbol:   symbol,
		Side:     side,
		Quantity: quantity,
		Type:     domain.Market,
		PairName: pairName,
	}
}
