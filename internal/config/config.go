// Package config loads the process-wide configuration once at startup from
// environment variables with typed defaults.
//
// Grounded on gopher-lab-kalshi-go's production/config.go +
// internal/config/config.go split (trading/engine parameters vs.
// credentials, both env-var driven with defaults); generalized here into a
// single flat Config since this engine has no RSA key material to keep
// separate from trading parameters.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/weatherdesk/dynamic-trader/internal/agenterr"
)

// Config is the full set of env-var-driven parameters the engine needs.
type Config struct {
	IntervalSeconds int
	LookaheadDays   int

	EdgeMin          float64
	FeeBP            float64
	SlippageBP       float64
	KellyCap         float64
	PerMarketCap     decimal.Decimal
	LiquidityMin     decimal.Decimal
	DailyBankrollCap decimal.Decimal

	ModelMode string

	ForecastBaseURL      string
	ForecastBearer       string
	ForecastRateLimitRPS float64

	MarketBaseURL string
	MarketBearer  string
	MarketWSURL   string // optional; empty disables the live feed

	ObservationBaseURL string

	SnapshotRoot string
	LedgerRoot   string
	TogglePath   string

	ReplayDBPath string

	SlackWebhookURL   string
	DiscordWebhookURL string
}

// Load reads Config from the environment. A malformed or unsupported value
// is a config_error and the caller is expected to treat it as fatal at
// startup, never mid-cycle.
func Load() (Config, error) {
	cfg := Config{
		IntervalSeconds: 900,
		LookaheadDays:   2,

		EdgeMin:          0.05,
		FeeBP:            50,
		SlippageBP:       30,
		KellyCap:         0.10,
		PerMarketCap:     decimal.NewFromInt(500),
		LiquidityMin:     decimal.NewFromInt(1000),
		DailyBankrollCap: decimal.NewFromInt(3000),

		ModelMode: "spread",

		ForecastRateLimitRPS: 5,

		SnapshotRoot: "data/snapshots/dynamic",
		LedgerRoot:   "data/trades",
		TogglePath:   "data/config/feature_toggles.json",
		ReplayDBPath: "data/replay/index.db",
	}

	var err error
	cfg.IntervalSeconds, err = envInt("DYNAMIC_INTERVAL_SECONDS", cfg.IntervalSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.LookaheadDays, err = envInt("DYNAMIC_LOOKAHEAD_DAYS", cfg.LookaheadDays)
	if err != nil {
		return Config{}, err
	}
	cfg.EdgeMin, err = envFloat("EDGE_MIN", cfg.EdgeMin)
	if err != nil {
		return Config{}, err
	}
	cfg.FeeBP, err = envFloat("FEE_BP", cfg.FeeBP)
	if err != nil {
		return Config{}, err
	}
	cfg.SlippageBP, err = envFloat("SLIPPAGE_BP", cfg.SlippageBP)
	if err != nil {
		return Config{}, err
	}
	cfg.KellyCap, err = envFloat("KELLY_CAP", cfg.KellyCap)
	if err != nil {
		return Config{}, err
	}
	cfg.PerMarketCap, err = envDecimal("PER_MARKET_CAP", cfg.PerMarketCap)
	if err != nil {
		return Config{}, err
	}
	cfg.LiquidityMin, err = envDecimal("LIQUIDITY_MIN", cfg.LiquidityMin)
	if err != nil {
		return Config{}, err
	}
	cfg.DailyBankrollCap, err = envDecimal("DAILY_BANKROLL_CAP", cfg.DailyBankrollCap)
	if err != nil {
		return Config{}, err
	}
	cfg.ForecastRateLimitRPS, err = envFloat("FORECAST_RATE_LIMIT_RPS", cfg.ForecastRateLimitRPS)
	if err != nil {
		return Config{}, err
	}

	cfg.ModelMode = envString("MODEL_MODE", cfg.ModelMode)
	if cfg.ModelMode != "spread" {
		return Config{}, agenterr.New(agenterr.KindConfig, "config.Load",
			fmt.Errorf("MODEL_MODE %q is not supported (only \"spread\" is implemented)", cfg.ModelMode))
	}

	cfg.ForecastBaseURL = envString("FORECAST_BASE_URL", "")
	cfg.ForecastBearer = envString("FORECAST_BEARER_TOKEN", "")
	cfg.MarketBaseURL = envString("MARKET_BASE_URL", "")
	cfg.MarketBearer = envString("MARKET_BEARER_TOKEN", "")
	cfg.MarketWSURL = envString("MARKET_WS_URL", "")
	cfg.ObservationBaseURL = envString("OBSERVATION_BASE_URL", "")

	cfg.SnapshotRoot = envString("SNAPSHOT_ROOT", cfg.SnapshotRoot)
	cfg.LedgerRoot = envString("LEDGER_ROOT", cfg.LedgerRoot)
	cfg.TogglePath = envString("TOGGLE_PATH", cfg.TogglePath)
	cfg.ReplayDBPath = envString("REPLAY_DB_PATH", cfg.ReplayDBPath)

	cfg.SlackWebhookURL = envString("SLACK_WEBHOOK_URL", "")
	cfg.DiscordWebhookURL = envString("DISCORD_WEBHOOK_URL", "")

	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, agenterr.New(agenterr.KindConfig, "config.Load", fmt.Errorf("%s: %w", key, err))
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, agenterr.New(agenterr.KindConfig, "config.Load", fmt.Errorf("%s: %w", key, err))
	}
	return f, nil
}

func envDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, agenterr.New(agenterr.KindConfig, "config.Load", fmt.Errorf("%s: %w", key, err))
	}
	return d, nil
}
