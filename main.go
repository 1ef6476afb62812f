package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"statArbExecutor/config"
	"statArbExecutor/internal/adapters/binancegw"
	"statArbExecutor/internal/adapters/logger"
	"statArbExecutor/internal/adapters/papergw"
	"statArbExecutor/internal/adapters/signalws"
	"statArbExecutor/internal/adapters/sqlite"
	"statArbExecutor/internal/adapters/zerologger"
	"statArbExecutor/internal/execution"
	"statArbExecutor/internal/ingest"
	"statArbExecutor/internal/ledger"
	"statArbExecutor/internal/monitor"
	"statArbExecutor/internal/ports"
	"statArbExecutor/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		appLogger = zerologger.New(zerologger.Config{Level: cfg.LogLevel})
	} else {
		appLogger = logger.NewStdLogger(logger.ParseLevel(cfg.LogLevel))
	}
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel, "format": cfg.LogFormat})

	// 3. Initialize Execution Journal (Database Adapter)
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.JournalPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution journal")
		log.Fatalf("FATAL: Failed to initialize execution journal: %v", err) // Also log to stderr
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing execution journal")
		}
	}()
	appLogger.Info(ctx, "Execution journal initialized", map[string]interface{}{"path": cfg.JournalPath})

	// 4. Initialize Ledger and Risk Gate
	book, err := ledger.New(ledger.Config{
		Logger:     appLogger,
		HistoryCap: cfg.PnlHistoryCap,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position ledger")
		log.Fatalf("FATAL: Failed to initialize position ledger: %v", err)
	}
	gate, err := risk.New(cfg.RiskLimits, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize risk gate")
		log.Fatalf("FATAL: Failed to initialize risk gate: %v", err)
	}

	// 5. Initialize Order Gateway (paper simulator or Binance)
	var gateway ports.OrderGateway
	var priceSource ports.PriceSource
	var paperGW *papergw.Gateway
	var binanceGW *binancegw.Gateway
	if cfg.Mode == config.ModeLive {
		binanceGW, err = binancegw.New(binancegw.Config{
			APIKey:               cfg.APIKey,
			SecretKey:            cfg.SecretKey,
			UseTestnet:           cfg.IsTestnet,
			Logger:               appLogger,
			ReconnectMin:         cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance gateway")
			log.Fatalf("FATAL: Failed to initialize Binance gateway: %v", err)
		}
		gateway, priceSource = binanceGW, binanceGW
	} else {
		paperGW, err = papergw.New(papergw.Config{Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper gateway")
			log.Fatalf("FATAL: Failed to initialize paper gateway: %v", err)
		}
		gateway, priceSource = paperGW, paperGW
	}
	appLogger.Info(ctx, "Order gateway initialized", map[string]interface{}{"mode": cfg.Mode})

	// 6. Initialize Execution Coordinator
	coordinator, err := execution.NewCoordinator(appLogger, gateway, journal, book, gate)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution coordinator")
		log.Fatalf("FATAL: Failed to initialize execution coordinator: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := coordinator.Start(runCtx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to start execution coordinator")
		log.Fatalf("FATAL: Failed to start execution coordinator: %v", err)
	}

	// The live gateway opens its user data stream only after the coordinator
	// has registered itself as the callback handler.
	if binanceGW != nil {
		if err := binanceGW.Start(runCtx); err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to start Binance user data stream")
			log.Fatalf("FATAL: Failed to start Binance user data stream: %v", err)
		}
	}

	// 7. Initialize Signal Intake
	// In paper mode, producer mark prices also feed the simulator's fill
	// price table.
	var sink ingest.ExecutionSink = coordinator
	if paperGW != nil {
		sink = &paperSink{Coordinator: coordinator, gw: paperGW}
	}
	ingestor, err := ingest.New(ingest.Config{Logger: appLogger, Sink: sink})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal ingestor")
		log.Fatalf("FATAL: Failed to initialize signal ingestor: %v", err)
	}

	feed, err := signalws.New(signalws.Config{
		URL:                  cfg.FeedURL,
		Logger:               appLogger,
		ReconnectMin:         cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal feed")
		log.Fatalf("FATAL: Failed to initialize signal feed: %v", err)
	}

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		if err := ingestor.Run(runCtx, feed); err != nil {
			appLogger.Error(runCtx, err, "Signal intake terminated")
		}
	}()

	// 8. Start Monitor HTTP Server
	monitorSrv, err := monitor.New(monitor.Config{
		Addr:        cfg.MonitorAddr,
		Logger:      appLogger,
		Coordinator: coordinator,
		Ingestor:    ingestor,
		Journal:     journal,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize monitor server")
		log.Fatalf("FATAL: Failed to initialize monitor server: %v", err)
	}
	monitorSrv.Start(runCtx)

	// 9. Start Mark-to-Market Refresh
	if symbols := cfg.Symbols(); len(symbols) > 0 {
		go runMarkRefresh(runCtx, appLogger, coordinator, priceSource, symbols, cfg.MarkRefreshInterval)
	}

	// Wait for interrupt signal or intake death
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	case <-ingestDone:
		appLogger.Warn(ctx, "Signal intake exited, shutting down")
	}

	// Graceful shutdown: stop intake first, then execution, then the
	// gateway stream, and give the monitor server time to drain.
	cancel()
	<-ingestDone
	coordinator.Stop(ctx)
	if binanceGW != nil {
		binanceGW.Stop()
	}
	if paperGW != nil {
		paperGW.Drain()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := monitorSrv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(ctx, err, "Monitor server forced to shut down")
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

// runMarkRefresh polls the price source for the configured symbols and feeds
// the marks into the coordinator until ctx is cancelled.
func runMarkRefresh(ctx context.Context, appLogger ports.Logger, coordinator *execution.Coordinator, source ports.PriceSource, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prices := make(map[string]float64, len(symbols))
			for _, symbol := range symbols {
				price, err := source.MarkPrice(ctx, symbol)
				if err != nil {
					appLogger.Warn(ctx, "Mark price refresh failed", map[string]interface{}{
						"symbol": symbol,
						"error":  err.Error(),
					})
					continue
				}
				prices[symbol] = price
			}
			coordinator.ApplyMarkPrices(ctx, prices)
		}
	}
}

// paperSink routes producer mark prices to both the coordinator's ledger and
// the paper gateway's fill price table.
type paperSink struct {
	*execution.Coordinator
	gw *papergw.Gateway
}

func (s *paperSink) ApplyMarkPrices(ctx context.Context, prices map[string]float64) {
	s.gw.SetPrices(prices)
	s.Coordinator.ApplyMarkPrices(ctx, prices)
}
