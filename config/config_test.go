package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_PaperDefaults(t *testing.T) {
	t.Setenv("MODE", "paper")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, "ws://127.0.0.1:5556/signals", cfg.FeedURL)
	assert.Equal(t, "./data/execution_journal.db", cfg.JournalPath)
	assert.Equal(t, ":8080", cfg.MonitorAddr)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.InDelta(t, 0.7, cfg.RiskLimits.MinConfidence, 1e-9)
	assert.True(t, cfg.IsTestnet)
}

func TestLoadConfig_LiveModeRequiresKeys(t *testing.T) {
	t.Setenv("MODE", "live")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINANCE_API_KEY must be set in live mode")
	assert.Contains(t, err.Error(), "BINANCE_API_SECRET must be set in live mode")
}

func TestLoadConfig_UnknownModeRejected(t *testing.T) {
	t.Setenv("MODE", "backtest")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODE must be")
}

func TestLoadConfig_PairParsing(t *testing.T) {
	t.Setenv("MODE", "paper")
	t.Setenv("PAIRS", " AAPL_MSFT , KO_PEP ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL_MSFT", "KO_PEP"}, cfg.Pairs)
	assert.Equal(t, []string{"AAPL", "MSFT", "KO", "PEP"}, cfg.Symbols())
}

func TestLoadConfig_PairWithoutSeparatorRejected(t *testing.T) {
	t.Setenv("MODE", "paper")
	t.Setenv("PAIRS", "AAPLMSFT")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYMBOLA_SYMBOLB")
}

func TestLoadConfig_LimitOverridesApplied(t *testing.T) {
	t.Setenv("MODE", "paper")
	t.Setenv("MIN_CONFIDENCE", "0.9")
	t.Setenv("MAX_DAILY_LOSS", "2500")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.InDelta(t, 0.9, cfg.RiskLimits.MinConfidence, 1e-9)
	assert.InDelta(t, 2500, cfg.RiskLimits.MaxDailyLoss, 1e-9)
	// Untouched limits keep their defaults.
	assert.InDelta(t, 10000, cfg.RiskLimits.MaxPositionSize, 1e-9)
}

func TestLoadConfig_UnparsableLimitIsError(t *testing.T) {
	t.Setenv("MODE", "paper")
	t.Setenv("MAX_DAILY_LOSS", "lots")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid MAX_DAILY_LOSS")
}

func TestLoadConfig_InvalidLimitValueIsError(t *testing.T) {
	t.Setenv("MODE", "paper")
	t.Setenv("MIN_CONFIDENCE", "1.5")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid risk limits")
}

func TestSymbols_DeduplicatesSharedLegs(t *testing.T) {
	cfg := &Config{Pairs: []string{"AAPL_MSFT", "AAPL_GOOG"}}
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, cfg.Symbols())
}
