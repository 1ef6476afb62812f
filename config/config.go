package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"statArbExecutor/internal/risk"
)

// Execution modes.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config holds all application configuration.
type Config struct {
	// Execution mode: paper routes orders to the in-memory simulator,
	// live routes them to Binance.
	Mode string

	// Signal producer feed
	FeedURL string

	// Binance API (live mode only)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Pair universe, names in SYMBOLA_SYMBOLB form. Drives the
	// mark-to-market polling loop in live mode.
	Pairs []string

	// Risk limits applied by the gate at startup
	RiskLimits risk.Limits

	// Journal database
	JournalPath string

	// Monitor HTTP server
	MonitorAddr string

	// Logging
	LogLevel  string
	LogFormat string // "console" or "json"

	// Connection settings for the Binance gateway
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int

	// Mark-to-market refresh cadence
	MarkRefreshInterval time.Duration

	// Max retained in-memory P&L snapshots
	PnlHistoryCap int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Execution mode. Default to paper for safety.
	cfg.Mode = strings.ToLower(getEnv("MODE", ModePaper))
	if cfg.Mode != ModePaper && cfg.Mode != ModeLive {
		errs = append(errs, fmt.Sprintf("MODE must be %q or %q, got %q", ModePaper, ModeLive, cfg.Mode))
	}

	// Signal feed
	cfg.FeedURL = getEnv("SIGNAL_FEED_URL", "ws://127.0.0.1:5556/signals")
	if cfg.FeedURL == "" {
		errs = append(errs, "SIGNAL_FEED_URL must be set")
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.Mode == ModeLive {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set in live mode")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set in live mode")
		}
	}

	// Pair universe
	for _, raw := range strings.Split(getEnv("PAIRS", ""), ",") {
		pair := strings.TrimSpace(raw)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, "_") {
			errs = append(errs, fmt.Sprintf("pair %q must use the SYMBOLA_SYMBOLB form", pair))
			continue
		}
		cfg.Pairs = append(cfg.Pairs, pair)
	}

	// Risk limits, starting from the built-in defaults. A limit that is set
	// but unparsable is a hard error rather than a silent default.
	limits := risk.DefaultLimits()
	limitVars := []struct {
		key    string
		target *float64
	}{
		{"MAX_POSITION_SIZE", &limits.MaxPositionSize},
		{"MAX_DAILY_LOSS", &limits.MaxDailyLoss},
		{"MAX_TOTAL_EXPOSURE", &limits.MaxTotalExposure},
		{"MIN_CONFIDENCE", &limits.MinConfidence},
		{"MAX_ZSCORE", &limits.MaxZScore},
		{"MAX_DRAWDOWN_PERCENT", &limits.MaxDrawdownPercent},
		{"MAX_CORRELATION", &limits.MaxCorrelation},
		{"MAX_VOLATILITY", &limits.MaxVolatility},
	}
	for _, lv := range limitVars {
		value, err := getEnvAsFloatRequired(lv.key, *lv.target)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", lv.key, err))
			continue
		}
		*lv.target = value
	}
	if err := limits.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid risk limits: %v", err))
	}
	cfg.RiskLimits = limits

	// Journal
	cfg.JournalPath = getEnv("JOURNAL_DB_PATH", "./data/execution_journal.db")
	if cfg.JournalPath == "" {
		errs = append(errs, "JOURNAL_DB_PATH must be set")
	}

	// Monitor
	cfg.MonitorAddr = getEnv("MONITOR_ADDR", ":8080")

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "console"))
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be \"console\" or \"json\", got %q", cfg.LogFormat))
	}

	// Connection settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 1)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Mark-to-market refresh
	markRefreshSeconds := getEnvAsInt("MARK_REFRESH_SECONDS", 15)
	if markRefreshSeconds <= 0 {
		errs = append(errs, "MARK_REFRESH_SECONDS must be positive")
	}
	cfg.MarkRefreshInterval = time.Duration(markRefreshSeconds) * time.Second

	// Snapshot history
	cfg.PnlHistoryCap = getEnvAsInt("PNL_HISTORY_CAP", 1000)
	if cfg.PnlHistoryCap <= 0 {
		errs = append(errs, "PNL_HISTORY_CAP must be positive")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Symbols returns the deduplicated leg symbols across the configured pairs,
// in first-seen order.
func (c *Config) Symbols() []string {
	seen := make(map[string]struct{})
	var symbols []string
	for _, pair := range c.Pairs {
		for _, s := range strings.SplitN(pair, "_", 2) {
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			symbols = append(symbols, s)
		}
	}
	return symbols
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
