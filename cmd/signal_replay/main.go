package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"

	"statArbExecutor/internal/adapters/logger"
	"statArbExecutor/internal/adapters/papergw"
	"statArbExecutor/internal/adapters/sqlite"
	"statArbExecutor/internal/execution"
	"statArbExecutor/internal/ingest"
	"statArbExecutor/internal/ledger"
	"statArbExecutor/internal/ports"
	"statArbExecutor/internal/risk"
	"statArbExecutor/internal/utils"
)

// signal_replay runs a recorded producer session through the full execution
// stack against the paper gateway and prints the resulting P&L. Useful for
// validating risk limits and producer captures without a live session.
func main() {
	file := flag.String("file", "", "recorded producer session to replay, one JSON message per line")
	journalPath := flag.String("journal", "", "optional journal database path; empty replays without an audit trail")
	level := flag.String("level", "WARN", "log level during the replay (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	if *file == "" {
		log.Fatal("FATAL: -file is required")
	}

	appLogger := logger.NewStdLogger(logger.ParseLevel(*level))
	ctx := context.Background()

	messages, err := utils.ReadMessagesFromJSONL(*file)
	if err != nil {
		log.Fatalf("FATAL: Failed to load session: %v", err)
	}

	// Execution stack wired against the paper gateway. Orders fill at the
	// producer's own mark prices, fed through the replayed position updates.
	gw, err := papergw.New(papergw.Config{Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper gateway: %v", err)
	}

	var journal ports.ExecutionJournal
	var journalClose func() error
	if *journalPath != "" {
		j, err := sqlite.NewJournal(sqlite.Config{DBPath: *journalPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize execution journal: %v", err)
		}
		journal = j
		journalClose = j.Close
	}

	book, err := ledger.New(ledger.Config{Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize position ledger: %v", err)
	}
	gate, err := risk.New(risk.DefaultLimits(), appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk gate: %v", err)
	}

	coordinator, err := execution.NewCoordinator(appLogger, gw, journal, book, gate)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize execution coordinator: %v", err)
	}
	if err := coordinator.Start(ctx); err != nil {
		log.Fatalf("FATAL: Failed to start execution coordinator: %v", err)
	}

	ingestor, err := ingest.New(ingest.Config{
		Logger: appLogger,
		Sink:   &replaySink{Coordinator: coordinator, gw: gw},
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal ingestor: %v", err)
	}

	for _, raw := range messages {
		_ = ingestor.Process(ctx, raw) // malformed lines are logged and skipped
		gw.Drain()                     // apply fills before the next message
	}
	gw.Drain()
	coordinator.Stop(ctx)

	printSummary(ingestor, coordinator)

	if journalClose != nil {
		if err := journalClose(); err != nil {
			appLogger.Error(ctx, err, "Error closing execution journal")
		}
	}
}

func printSummary(ingestor *ingest.Ingestor, coordinator *execution.Coordinator) {
	stats := ingestor.Stats()
	pipeline := coordinator.Stats()
	summary := coordinator.PnlSummary()
	riskStatus := coordinator.RiskStatus()
	positions := coordinator.Positions()

	fmt.Printf("Replayed %d messages (%d trade signals, %d discarded)\n",
		stats.Received, stats.TradeSignals, stats.Discarded)
	fmt.Printf("Admitted %d signals, rejected %d; %d orders submitted, %d fills applied\n",
		pipeline.SignalsAdmitted, pipeline.SignalsRejected, pipeline.OrdersSubmitted, pipeline.FillsApplied)
	fmt.Printf("Realized P&L:   %12.2f\n", summary.RealizedPnl)
	fmt.Printf("Unrealized P&L: %12.2f\n", summary.UnrealizedPnl)
	fmt.Printf("Total P&L:      %12.2f\n", summary.TotalPnl)
	fmt.Printf("Max drawdown:   %11.2f%%\n", summary.MaxDrawdown)
	fmt.Printf("Exposure:       %12.2f\n", summary.Exposure)
	if !riskStatus.TradingAllowed {
		fmt.Printf("Trading halted: %s\n", riskStatus.HaltReason)
	}

	if len(positions) == 0 {
		fmt.Println("No open positions.")
		return
	}
	symbols := make([]string, 0, len(positions))
	for symbol := range positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	fmt.Println("Open positions:")
	for _, symbol := range symbols {
		p := positions[symbol]
		fmt.Printf("  %-8s qty %8d  avg %10.2f  unrealized %10.2f\n",
			p.Symbol, p.Quantity, p.AvgPrice, p.UnrealizedPnl)
	}
}

// replaySink routes producer mark prices to both the coordinator's ledger
// and the paper gateway's fill price table.
type replaySink struct {
	*execution.Coordinator
	gw *papergw.Gateway
}

func (s *replaySink) ApplyMarkPrices(ctx context.Context, prices map[string]float64) {
	s.gw.SetPrices(prices)
	s.Coordinator.ApplyMarkPrices(ctx, prices)
}
