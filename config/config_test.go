package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forecaster.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimal = `
forecaster:
  asset: BTC
  currency: USD
  max_possible_price: 100000
feed:
  exchange: SIM
  token: BTC
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Forecaster.HistoryLength != 500 || cfg.Forecaster.LookaheadCandles != 10 {
		t.Errorf("forecaster defaults: %+v", cfg.Forecaster)
	}
	if cfg.Model.Iterations != 1000 || cfg.Model.LearningRate != 0.3 || cfg.Model.ErrorThreshold != 0.005 {
		t.Errorf("model defaults: %+v", cfg.Model)
	}
	if cfg.Store.Backend != "file" || cfg.Store.File.Dir != "data/models" || cfg.Store.SaveTimeout != 30*time.Second {
		t.Errorf("store defaults: %+v", cfg.Store)
	}
	if cfg.Store.Redis.Prefix != "forecast:model:" {
		t.Errorf("redis prefix = %q", cfg.Store.Redis.Prefix)
	}
	if cfg.Feed.Source != "sqlite" || !cfg.Feed.Record || cfg.Feed.ReconnectDelay != 2*time.Second || cfg.Feed.SkipMalformed {
		t.Errorf("feed defaults: %+v", cfg.Feed)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9090" || cfg.Log.Level != "info" {
		t.Errorf("metrics/log defaults: %+v %+v", cfg.Metrics, cfg.Log)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
model:
  hidden_layers: 3
  batch_size: 8
store:
  backend: redis
  save_timeout: 5s
  redis:
    addr: redis:6379
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model.HiddenLayers != 3 || cfg.Model.BatchSize != 8 {
		t.Errorf("model: %+v", cfg.Model)
	}
	if cfg.Store.Backend != "redis" || cfg.Store.Redis.Addr != "redis:6379" || cfg.Store.SaveTimeout != 5*time.Second {
		t.Errorf("store: %+v", cfg.Store)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FORECAST_ASSET", "ETH")
	t.Setenv("FORECAST_HISTORY_LENGTH", "250")
	t.Setenv("FORECAST_MAX_POSSIBLE_PRICE", "9000.5")
	t.Setenv("FORECAST_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Forecaster.Asset != "ETH" || cfg.Forecaster.HistoryLength != 250 || cfg.Forecaster.MaxPossiblePrice != 9000.5 {
		t.Errorf("env overrides not applied: %+v", cfg.Forecaster)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	withForecaster := func(extra string) string {
		return strings.Replace(minimal, "max_possible_price: 100000", "max_possible_price: 100000\n"+extra, 1)
	}
	tests := []struct {
		name string
		body string
	}{
		{"missing asset", strings.Replace(minimal, "asset: BTC", "", 1)},
		{"missing price", strings.Replace(minimal, "max_possible_price: 100000", "", 1)},
		{"lookahead not below history", withForecaster("  history_length: 5\n  lookahead_candles: 5")},
		{"bad indicator", withForecaster(`  indicators: ["WMA:5"]`)},
		{"unknown backend", minimal + "store:\n  backend: mongo\n"},
		{"s3 without bucket", minimal + "store:\n  backend: s3\n"},
		{"ws without url", strings.Replace(minimal, "feed:\n", "feed:\n  source: ws\n", 1)},
		{"bad log level", minimal + "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		if _, err := Load(writeConfig(t, tt.body)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseIndicators(t *testing.T) {
	cfg, err := ParseIndicators([]string{"ema:3", " EMA : 5 ", "RSI:14"})
	if err != nil {
		t.Fatalf("ParseIndicators: %v", err)
	}
	if cfg.AverageType != "EMA" || len(cfg.AverageWindows) != 2 || cfg.AverageWindows[1] != 5 {
		t.Errorf("averages: %+v", cfg)
	}
	if len(cfg.OscillatorPeriods) != 1 || cfg.OscillatorPeriods[0] != 14 {
		t.Errorf("oscillators: %+v", cfg)
	}

	for _, bad := range [][]string{
		{"SMA"},
		{"SMA:x"},
		{"SMA:3", "EMA:5"},
		{"MACD:12"},
		{"SMA:0"},
		{"RSI:14", "RSI:14"},
	} {
		if _, err := ParseIndicators(bad); err == nil {
			t.Errorf("ParseIndicators(%v): expected error", bad)
		}
	}
}

func TestForecastConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, strings.Replace(minimal, "max_possible_price: 100000",
		"max_possible_price: 100000\n  indicators: [\"SMA:20\", \"RSI:14\"]", 1)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fc, err := cfg.ForecastConfig()
	if err != nil {
		t.Fatal(err)
	}
	if fc.Instrument.Asset != "BTC" || fc.Instrument.Currency != "USD" || fc.MaxPossiblePrice != 100000 {
		t.Errorf("forecast config: %+v", fc)
	}
	if fc.HistoryLength != 500 || fc.Lookahead != 10 || fc.HyperParams.Iterations != 1000 {
		t.Errorf("forecast config: %+v", fc)
	}
	if fc.Indicators.AverageType != "SMA" || fc.Indicators.AverageWindows[0] != 20 || fc.Indicators.OscillatorPeriods[0] != 14 {
		t.Errorf("indicators: %+v", fc.Indicators)
	}
	if err := fc.Validate(); err != nil {
		t.Errorf("mapped config does not validate: %v", err)
	}
}
