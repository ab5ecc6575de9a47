// cmd/forecaster feeds candles from a recorded SQLite history or a live
// WebSocket stream through the envelope forecaster and logs the predicted
// low/high of the next lookahead candles next to the current candle.
//
// Usage:
//
//	go run ./cmd/forecaster --config=forecaster.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trading-forecaster/config"
	"trading-forecaster/internal/forecast"
	"trading-forecaster/internal/logger"
	"trading-forecaster/internal/marketdata/replay"
	"trading-forecaster/internal/marketdata/wsfeed"
	"trading-forecaster/internal/metrics"
	"trading-forecaster/internal/model"
	"trading-forecaster/internal/network"
	filestore "trading-forecaster/internal/store/file"
	redisstore "trading-forecaster/internal/store/redis"
	s3store "trading-forecaster/internal/store/s3"
	sqlitestore "trading-forecaster/internal/store/sqlite"
)

const candleBuffer = 1024

func main() {
	configPath := flag.String("config", "forecaster.yaml", "Path to the YAML configuration file")
	flag.Parse()

	boot := logger.New("forecaster", logger.Config{})
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRunID(ctx, logger.NewRunID())
	log := logger.FromContext(ctx, logger.New("forecaster", logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(cfg.Store.Backend)

	store, closeStore, err := openStore(ctx, cfg, log, m)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("model store open failed")
	}
	defer closeStore()

	fc, err := cfg.ForecastConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid forecaster config")
	}
	ctrl, err := forecast.New(ctx, fc, network.NewTrainer(cfg.Model.Seed), store,
		forecast.WithLogger(log),
		forecast.WithMetrics(m),
		forecast.WithSaveTimeout(cfg.Store.SaveTimeout),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("forecaster init failed")
	}
	health.Observe(ctrl.Phase().String(), 0, time.Time{})
	log.Info().Str("key", ctrl.Key()).Stringer("phase", ctrl.Phase()).Str("instrument", fc.Instrument.String()).Msg("forecaster ready")

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Addr, reg, health, log)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	candleCh := make(chan model.Candle, candleBuffer)
	var recordCh chan model.Candle

	switch cfg.Feed.Source {
	case "sqlite":
		reader, err := sqlitestore.NewReader(cfg.Feed.ReplayPath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("replay source open failed")
		}
		defer reader.Close()

		g.Go(func() error {
			defer close(candleCh)
			_, err := replay.New(reader, log).Run(gctx, cfg.Feed.Exchange, cfg.Feed.Token, cfg.Feed.ReplayFrom, cfg.Feed.ReplaySpeed, candleCh)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})

	case "ws":
		feed, err := wsfeed.New(wsfeed.Config{
			URL:               cfg.Feed.URL,
			Exchange:          cfg.Feed.Exchange,
			Token:             cfg.Feed.Token,
			ReconnectDelay:    cfg.Feed.ReconnectDelay,
			MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("feed init failed")
		}
		feed.OnReconnect = m.FeedReconnects.Inc
		feed.OnConnState = health.SetFeedConnected

		g.Go(func() error {
			defer close(candleCh)
			return feed.Start(gctx, candleCh)
		})

		if cfg.Feed.Record {
			recorder, err := sqlitestore.New(sqlitestore.Config{Path: cfg.Feed.RecordPath, Metrics: m}, log)
			if err != nil {
				log.Fatal().Err(err).Msg("candle recorder open failed")
			}
			defer recorder.Close()

			recordCh = make(chan model.Candle, candleBuffer)
			g.Go(func() error {
				// flushes the last batch once recordCh is closed
				recorder.Run(context.Background(), recordCh)
				return nil
			})
		}
	}

	var st stats
	g.Go(func() error {
		if recordCh != nil {
			defer close(recordCh)
		}
		return consume(gctx, ctrl, candleCh, recordCh, cfg.Feed.SkipMalformed, health, log, &st)
	})

	runErr := g.Wait()
	ctrl.Close()
	printSummary(ctrl, st)
	if runErr != nil {
		log.Fatal().Err(runErr).Msg("forecaster stopped")
	}
}

type stats struct {
	observed    int
	rejected    int
	predictions int
}

// consume drives the controller from a single goroutine. Malformed candles
// stop it unless skipMalformed is set.
func consume(ctx context.Context, ctrl *forecast.Controller, in <-chan model.Candle, record chan<- model.Candle,
	skipMalformed bool, health *metrics.HealthStatus, log zerolog.Logger, st *stats) error {
	for {
		var c model.Candle
		select {
		case <-ctx.Done():
			return nil
		case cc, ok := <-in:
			if !ok {
				return nil
			}
			c = cc
		}
		st.observed++

		if record != nil {
			select {
			case record <- c:
			case <-ctx.Done():
				return nil
			}
		}

		err := ctrl.Update(ctx, c)
		health.Observe(ctrl.Phase().String(), ctrl.Count(), c.TS)
		switch {
		case errors.Is(err, forecast.ErrData) && skipMalformed, errors.Is(err, forecast.ErrInference):
			st.rejected++
			log.Warn().Err(err).Time("ts", c.TS).Msg("observation skipped")
			continue
		case err != nil:
			st.rejected++
			return err
		}

		p, ok := ctrl.Prediction()
		if !ok || !p.At.Equal(c.TS) {
			continue
		}
		st.predictions++
		log.Info().
			Time("ts", c.TS).
			Float64("predicted_low", p.Low).
			Float64("predicted_high", p.High).
			Float64("low", c.Low).
			Float64("high", c.High).
			Msg("prediction")
	}
}

// openStore builds the configured model store and its cleanup func.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (model.ModelStore, func(), error) {
	noop := func() {}
	switch cfg.Store.Backend {
	case "sqlite":
		s, err := sqlitestore.New(sqlitestore.Config{Path: cfg.Store.SQLite.Path, Metrics: m}, log)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { s.Close() }, nil

	case "redis":
		r := cfg.Store.Redis
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:          r.Addr,
			Password:      r.Password,
			DB:            r.DB,
			Prefix:        r.Prefix,
			ConnectWindow: r.ConnectWindow,
		}, log)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { s.Close() }, nil

	case "s3":
		c := cfg.Store.S3
		s, err := s3store.New(ctx, s3store.Config{
			Endpoint:       c.Endpoint,
			Region:         c.Region,
			Bucket:         c.Bucket,
			Prefix:         c.Prefix,
			AccessKey:      c.AccessKey,
			SecretKey:      c.SecretKey,
			UseSSL:         c.UseSSL,
			ForcePathStyle: c.ForcePathStyle,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	default:
		s, err := filestore.New(cfg.Store.File.Dir)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}

func printSummary(ctrl *forecast.Controller, st stats) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        FORECASTER STOPPED            ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles received:  %-16d ║\n", st.observed)
	fmt.Printf("║  Candles rejected:  %-16d ║\n", st.rejected)
	fmt.Printf("║  Predictions:       %-16d ║\n", st.predictions)
	fmt.Printf("║  Phase:             %-16s ║\n", ctrl.Phase())
	fmt.Println("╚══════════════════════════════════════╝")
}
