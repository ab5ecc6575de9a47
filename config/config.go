// Package config loads the forecaster configuration from a YAML file,
// applies defaults and FORECAST_* environment overrides, and validates it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trading-forecaster/internal/forecast"
	"trading-forecaster/internal/indicator"
	"trading-forecaster/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Forecaster ForecasterConfig `yaml:"forecaster"`
	Model      ModelConfig      `yaml:"model"`
	Store      StoreConfig      `yaml:"store"`
	Feed       FeedConfig       `yaml:"feed"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// ForecasterConfig binds the controller to an instrument.
type ForecasterConfig struct {
	Asset            string  `yaml:"asset" validate:"required"`
	Currency         string  `yaml:"currency" validate:"required"`
	HistoryLength    int     `yaml:"history_length" default:"500" validate:"gt=0"`
	LookaheadCandles int     `yaml:"lookahead_candles" default:"10" validate:"gt=0,ltfield=HistoryLength"`
	MaxPossiblePrice float64 `yaml:"max_possible_price" validate:"gt=0"`
	// Indicators in "TYPE:PERIOD" form, e.g. ["SMA:20", "RSI:14"].
	// Averages must share one type.
	Indicators []string `yaml:"indicators"`
}

// ModelConfig holds the training hyperparameters.
type ModelConfig struct {
	HiddenLayers   int     `yaml:"hidden_layers" default:"1" validate:"gte=0"`
	BatchSize      int     `yaml:"batch_size" default:"1" validate:"gt=0"`
	Iterations     int     `yaml:"iterations" default:"1000" validate:"gt=0"`
	LearningRate   float64 `yaml:"learning_rate" default:"0.3" validate:"gt=0"`
	Momentum       float64 `yaml:"momentum" default:"0.1" validate:"gte=0,lte=1"`
	Dropout        float64 `yaml:"dropout" validate:"gte=0,lt=1"`
	ErrorThreshold float64 `yaml:"error" default:"0.005" validate:"gt=0"`
	Seed           int64   `yaml:"seed" default:"1"`
}

// StoreConfig selects where model state lives.
type StoreConfig struct {
	Backend     string        `yaml:"backend" default:"file" validate:"oneof=file sqlite redis s3"`
	SaveTimeout time.Duration `yaml:"save_timeout" default:"30s"`
	File        struct {
		Dir string `yaml:"dir" default:"data/models"`
	} `yaml:"file"`
	SQLite struct {
		Path string `yaml:"path" default:"data/forecaster.db"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr          string        `yaml:"addr" default:"localhost:6379"`
		Password      string        `yaml:"password"`
		DB            int           `yaml:"db"`
		Prefix        string        `yaml:"prefix" default:"forecast:model:"`
		ConnectWindow time.Duration `yaml:"connect_window" default:"30s"`
	} `yaml:"redis"`
	S3 struct {
		Endpoint       string `yaml:"endpoint"`
		Region         string `yaml:"region" default:"us-east-1"`
		Bucket         string `yaml:"bucket"`
		Prefix         string `yaml:"prefix" default:"models/"`
		AccessKey      string `yaml:"access_key"`
		SecretKey      string `yaml:"secret_key"`
		UseSSL         bool   `yaml:"use_ssl" default:"true"`
		ForcePathStyle bool   `yaml:"force_path_style"`
	} `yaml:"s3"`
}

// FeedConfig selects the observation source.
type FeedConfig struct {
	Source   string `yaml:"source" default:"sqlite" validate:"oneof=sqlite ws"`
	Exchange string `yaml:"exchange" validate:"required"`
	Token    string `yaml:"token" validate:"required"`

	// sqlite replay
	ReplayPath  string  `yaml:"replay_path" default:"data/forecaster.db"`
	ReplayFrom  int64   `yaml:"replay_from"`
	ReplaySpeed float64 `yaml:"replay_speed" validate:"gte=0"`

	// websocket
	URL               string        `yaml:"url"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"2s"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" default:"30s"`
	Record            bool          `yaml:"record" default:"true"`
	RecordPath        string        `yaml:"record_path" default:"data/forecaster.db"`

	// SkipMalformed logs and drops malformed candles instead of stopping.
	SkipMalformed bool `yaml:"skip_malformed"`
}

// MetricsConfig configures the /metrics and /healthz server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Addr    string `yaml:"addr" default:":9090"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

var validate = validator.New()

// Load reads the YAML file at path on top of the defaults, loads .env if
// present, applies FORECAST_* overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks field tags and the rules that span sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := ParseIndicators(c.Forecaster.Indicators); err != nil {
		return err
	}
	if c.Feed.Source == "ws" && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required for the ws source")
	}
	if c.Store.Backend == "s3" && c.Store.S3.Bucket == "" {
		return fmt.Errorf("store.s3.bucket is required for the s3 backend")
	}
	return nil
}

// ForecastConfig maps the file configuration to the controller's.
func (c *Config) ForecastConfig() (forecast.Config, error) {
	ind, err := ParseIndicators(c.Forecaster.Indicators)
	if err != nil {
		return forecast.Config{}, err
	}
	return forecast.Config{
		HistoryLength:    c.Forecaster.HistoryLength,
		Lookahead:        c.Forecaster.LookaheadCandles,
		MaxPossiblePrice: c.Forecaster.MaxPossiblePrice,
		Instrument:       model.Instrument{Asset: c.Forecaster.Asset, Currency: c.Forecaster.Currency},
		Indicators:       ind,
		HyperParams: forecast.HyperParams{
			HiddenLayers:   c.Model.HiddenLayers,
			BatchSize:      c.Model.BatchSize,
			Iterations:     c.Model.Iterations,
			LearningRate:   c.Model.LearningRate,
			Momentum:       c.Model.Momentum,
			Dropout:        c.Model.Dropout,
			ErrorThreshold: c.Model.ErrorThreshold,
		},
	}, nil
}

// ParseIndicators parses "TYPE:PERIOD" specs. SMA, EMA and SMMA are
// averages; RSI is an oscillator. Order is preserved.
func ParseIndicators(specs []string) (indicator.Config, error) {
	var cfg indicator.Config
	for _, spec := range specs {
		typ, periodStr, ok := strings.Cut(strings.TrimSpace(spec), ":")
		if !ok {
			return indicator.Config{}, fmt.Errorf("indicator %q: want TYPE:PERIOD", spec)
		}
		period, err := strconv.Atoi(strings.TrimSpace(periodStr))
		if err != nil {
			return indicator.Config{}, fmt.Errorf("indicator %q: bad period: %w", spec, err)
		}
		typ = strings.ToUpper(strings.TrimSpace(typ))

		switch typ {
		case "SMA", "EMA", "SMMA":
			if cfg.AverageType != "" && cfg.AverageType != typ {
				return indicator.Config{}, fmt.Errorf("indicator %q: averages must share one type, have %s", spec, cfg.AverageType)
			}
			cfg.AverageType = typ
			cfg.AverageWindows = append(cfg.AverageWindows, period)
		case "RSI":
			cfg.OscillatorPeriods = append(cfg.OscillatorPeriods, period)
		default:
			return indicator.Config{}, fmt.Errorf("indicator %q: unknown type %s", spec, typ)
		}
	}
	if err := cfg.Validate(); err != nil {
		return indicator.Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets operators inject secrets and per-deploy settings
// without touching the YAML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Forecaster.Asset, "FORECAST_ASSET")
	setStr(&cfg.Forecaster.Currency, "FORECAST_CURRENCY")
	setInt(&cfg.Forecaster.HistoryLength, "FORECAST_HISTORY_LENGTH")
	setInt(&cfg.Forecaster.LookaheadCandles, "FORECAST_LOOKAHEAD_CANDLES")
	setFloat64(&cfg.Forecaster.MaxPossiblePrice, "FORECAST_MAX_POSSIBLE_PRICE")

	setStr(&cfg.Store.Backend, "FORECAST_STORE_BACKEND")
	setStr(&cfg.Store.Redis.Addr, "FORECAST_REDIS_ADDR")
	setStr(&cfg.Store.Redis.Password, "FORECAST_REDIS_PASSWORD")
	setStr(&cfg.Store.S3.Endpoint, "FORECAST_S3_ENDPOINT")
	setStr(&cfg.Store.S3.Bucket, "FORECAST_S3_BUCKET")
	setStr(&cfg.Store.S3.AccessKey, "FORECAST_S3_ACCESS_KEY")
	setStr(&cfg.Store.S3.SecretKey, "FORECAST_S3_SECRET_KEY")

	setStr(&cfg.Feed.Source, "FORECAST_FEED_SOURCE")
	setStr(&cfg.Feed.URL, "FORECAST_FEED_URL")
	setFloat64(&cfg.Feed.ReplaySpeed, "FORECAST_REPLAY_SPEED")

	setStr(&cfg.Metrics.Addr, "FORECAST_METRICS_ADDR")
	setStr(&cfg.Log.Level, "FORECAST_LOG_LEVEL")
	setStr(&cfg.Log.Format, "FORECAST_LOG_FORMAT")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
