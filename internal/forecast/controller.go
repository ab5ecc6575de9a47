// Package forecast drives the candle envelope forecaster: it buffers
// normalized observations, trains the predictive model exactly once when the
// history is complete, and then forecasts the lowest low and highest high of
// the next lookahead observations.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-forecaster/internal/feature"
	"trading-forecaster/internal/indicator"
	"trading-forecaster/internal/label"
	"trading-forecaster/internal/metrics"
	"trading-forecaster/internal/model"
)

const defaultSaveTimeout = 30 * time.Second

// Prediction is a forecast in price units.
type Prediction struct {
	Low  float64   `json:"low"`
	High float64   `json:"high"`
	At   time.Time `json:"at"` // timestamp of the observation it was made on
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithSaveTimeout bounds each asynchronous model save.
func WithSaveTimeout(d time.Duration) Option {
	return func(c *Controller) { c.saveTimeout = d }
}

// Controller owns the observation buffer and the lifecycle phase.
// Update must be called from a single goroutine; the accessors may not be
// called concurrently with it.
type Controller struct {
	cfg     Config
	key     string
	trainer Trainer
	store   model.ModelStore

	log         zerolog.Logger
	metrics     *metrics.Metrics
	saveTimeout time.Duration

	indicators *indicator.Set
	norm       *feature.Normalizer

	phase   Phase
	count   int
	buffer  []feature.Vector
	model   Model
	pred    Prediction
	hasPred bool

	overPrice bool // a price above the divider was seen and logged

	saves sync.WaitGroup
}

// New validates cfg and looks up a persisted model under KeyFor(cfg). When
// one exists the controller starts TRAINED and never collects; otherwise it
// starts COLLECTING.
func New(ctx context.Context, cfg Config, trainer Trainer, store model.ModelStore, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if trainer == nil || store == nil {
		return nil, fmt.Errorf("%w: trainer and store are required", ErrConfiguration)
	}

	set, err := indicator.NewSet(cfg.Indicators)
	if err != nil {
		return nil, fmt.Errorf("%w: indicators: %v", ErrConfiguration, err)
	}
	if cfg.HistoryLength < set.MinHistory() {
		return nil, fmt.Errorf("%w: history length %d is shorter than indicator warmup %d",
			ErrConfiguration, cfg.HistoryLength, set.MinHistory())
	}
	norm, err := feature.NewNormalizer(cfg.MaxPossiblePrice, set.Averages(), set.Oscillators())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	c := &Controller{
		cfg:         cfg,
		key:         KeyFor(cfg.Instrument, cfg.HyperParams),
		trainer:     trainer,
		store:       store,
		log:         zerolog.Nop(),
		saveTimeout: defaultSaveTimeout,
		indicators:  set,
		norm:        norm,
		phase:       PhaseCollecting,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "forecast").Str("key", c.key).Logger()

	if err := c.restore(ctx); err != nil {
		return nil, err
	}
	c.setPhaseGauge()
	return c, nil
}

func (c *Controller) restore(ctx context.Context) error {
	data, err := c.store.Load(ctx, c.key)
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.countLoad("miss")
		c.log.Info().Int("history", c.cfg.HistoryLength).Msg("no stored model, collecting history")
		c.buffer = make([]feature.Vector, 0, c.cfg.HistoryLength)
		return nil
	case err != nil:
		c.countLoad("error")
		return fmt.Errorf("%w: load %s: %w", ErrPersistenceLoad, c.key, err)
	}

	m, err := c.trainer.Restore(data)
	if err != nil {
		c.countLoad("error")
		return fmt.Errorf("%w: restore %s: %w", ErrPersistenceLoad, c.key, err)
	}
	// the key leaves out the indicator set, so a stored model may expect a
	// different vector layout
	if got, want := m.InputWidth(), c.norm.Width(); got != want {
		c.countLoad("error")
		return fmt.Errorf("%w: restore %s: model takes %d inputs, features have %d",
			ErrPersistenceLoad, c.key, got, want)
	}
	c.countLoad("hit")
	c.log.Info().Int("bytes", len(data)).Msg("restored stored model")
	c.enterTrained(m)
	return nil
}

// Update processes one observation. Errors wrapping ErrData or ErrInference
// leave the controller usable. ErrTraining is returned once, after which
// every call returns ErrFailed.
func (c *Controller) Update(ctx context.Context, candle model.Candle) error {
	if c.phase == PhaseFailed {
		return ErrFailed
	}
	if err := candle.Validate(); err != nil {
		c.countObservation("rejected")
		return fmt.Errorf("%w: %w", ErrData, err)
	}

	// indicators advance only once the vector is accepted
	v, err := c.norm.Normalize(candle, c.indicators.Peek(candle))
	if err != nil {
		c.countObservation("rejected")
		return fmt.Errorf("%w: %w", ErrData, err)
	}
	c.indicators.Update(candle)
	c.count++
	if !c.overPrice && candle.High > c.cfg.MaxPossiblePrice {
		c.overPrice = true
		c.log.Warn().Float64("high", candle.High).Float64("max_possible_price", c.cfg.MaxPossiblePrice).
			Msg("price above max_possible_price, normalized prices exceed 1 and low labels saturate at 1")
	}

	switch c.phase {
	case PhaseCollecting:
		c.buffer = append(c.buffer, v)
		c.countObservation("buffered")
		if c.count < c.cfg.HistoryLength {
			return nil
		}
		return c.train(ctx)
	default:
		return c.predict(candle, v)
	}
}

// train consumes the buffer. It runs at most once per controller.
func (c *Controller) train(ctx context.Context) error {
	samples, leftover, err := label.Build(c.buffer, c.cfg.Lookahead)
	if err != nil {
		return c.fail(err)
	}

	c.log.Info().Int("samples", len(samples)).Int("leftover", len(leftover)).Msg("training model")
	start := time.Now()
	m, err := c.trainer.Train(samples, c.cfg.HyperParams)
	took := time.Since(start)
	if err != nil {
		return c.fail(err)
	}
	if c.metrics != nil {
		c.metrics.TrainingsTotal.WithLabelValues("ok").Inc()
		c.metrics.TrainingDur.Observe(took.Seconds())
		c.metrics.TrainingSamples.Set(float64(len(samples)))
	}
	c.log.Info().Int("samples", len(samples)).Dur("took", took).Msg("model trained")

	c.persist(ctx, m)

	// leftover vectors have no label yet; they still advance stateful models
	for _, v := range leftover {
		if _, err := m.Infer(v); err != nil {
			return c.fail(fmt.Errorf("warm up: %w", err))
		}
	}
	c.enterTrained(m)
	return nil
}

func (c *Controller) fail(err error) error {
	c.phase = PhaseFailed
	c.buffer = nil
	if c.metrics != nil {
		c.metrics.TrainingsTotal.WithLabelValues("error").Inc()
	}
	c.setPhaseGauge()
	c.log.Error().Err(err).Msg("training failed, controller stopped")
	return fmt.Errorf("%w: %w", ErrTraining, err)
}

// enterTrained is the only transition out of COLLECTING.
func (c *Controller) enterTrained(m Model) {
	c.model = m
	c.phase = PhaseTrained
	c.buffer = nil
	c.setPhaseGauge()
}

func (c *Controller) predict(candle model.Candle, v feature.Vector) error {
	start := time.Now()
	out, err := c.model.Infer(v)
	if err != nil {
		c.countObservation("rejected")
		return fmt.Errorf("%w: %w", ErrInference, err)
	}
	div := c.norm.Dividers().Price
	c.pred = Prediction{Low: out[0] * div, High: out[1] * div, At: candle.TS}
	c.hasPred = true

	if c.metrics != nil {
		c.metrics.InferenceDur.Observe(time.Since(start).Seconds())
		c.metrics.PredictionLow.Set(c.pred.Low)
		c.metrics.PredictionHigh.Set(c.pred.High)
	}
	c.countObservation("predicted")
	return nil
}

// persist serializes m synchronously and saves it in the background.
// Failures are logged and counted, never returned.
func (c *Controller) persist(ctx context.Context, m Model) {
	data, err := m.Serialize()
	if err != nil {
		c.saveFailed(fmt.Errorf("%w: serialize: %w", ErrPersistenceSave, err))
		return
	}

	c.saves.Add(1)
	go func() {
		defer c.saves.Done()
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.saveTimeout)
		defer cancel()

		start := time.Now()
		if err := c.store.Save(saveCtx, c.key, data); err != nil {
			c.saveFailed(fmt.Errorf("%w: %w", ErrPersistenceSave, err))
			return
		}
		if c.metrics != nil {
			c.metrics.ModelSaveDur.Observe(time.Since(start).Seconds())
		}
		c.log.Info().Int("bytes", len(data)).Msg("model state saved")
	}()
}

func (c *Controller) saveFailed(err error) {
	if c.metrics != nil {
		c.metrics.ModelSaveFailure.Inc()
	}
	c.log.Warn().Err(err).Msg("model state not saved, keeping in-memory model")
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase { return c.phase }

// Count returns the number of accepted observations.
func (c *Controller) Count() int { return c.count }

// Key returns the persistence key of this controller's model.
func (c *Controller) Key() string { return c.key }

// Dividers returns the current normalization dividers.
func (c *Controller) Dividers() feature.Dividers { return c.norm.Dividers() }

// Prediction returns the latest forecast. ok is false until the first
// observation processed in PhaseTrained.
func (c *Controller) Prediction() (p Prediction, ok bool) {
	return c.pred, c.hasPred
}

// Close waits for outstanding model saves.
func (c *Controller) Close() {
	c.saves.Wait()
}

func (c *Controller) countObservation(outcome string) {
	if c.metrics != nil {
		c.metrics.ObservationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Controller) countLoad(result string) {
	if c.metrics != nil {
		c.metrics.ModelLoadsTotal.WithLabelValues(result).Inc()
	}
}

func (c *Controller) setPhaseGauge() {
	if c.metrics != nil {
		c.metrics.Phase.Set(float64(c.phase))
	}
}
