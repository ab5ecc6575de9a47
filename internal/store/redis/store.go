// Package redis stores model state in Redis behind a circuit breaker.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"trading-forecaster/internal/model"
)

const (
	defaultPrefix        = "forecast:model:"
	defaultConnectWindow = 30 * time.Second
	pingTimeout          = 5 * time.Second
)

// Config configures the Redis model store.
type Config struct {
	Addr          string // e.g. "localhost:6379"
	Password      string
	DB            int
	Prefix        string        // key prefix; default "forecast:model:"
	ConnectWindow time.Duration // total time spent retrying the first ping
	MaxFailures   int           // consecutive failures before the breaker opens
	Cooldown      time.Duration // breaker open duration
}

// Store implements model.ModelStore. State is stored without TTL.
type Store struct {
	client  *goredis.Client
	prefix  string
	breaker *Breaker
	log     zerolog.Logger
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// New connects to Redis, retrying the ping with exponential backoff until
// ConnectWindow elapses or ctx is done.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	window := cfg.ConnectWindow
	if window <= 0 {
		window = defaultConnectWindow
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = window

	attempt := 0
	ping := func() error {
		attempt++
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		err := client.Ping(pctx).Err()
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("addr", cfg.Addr).Msg("redis ping failed")
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	s := NewWithClient(client, cfg, log)
	s.log.Info().Str("addr", cfg.Addr).Msg("connected")
	return s, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, log zerolog.Logger) *Store {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}

	s := &Store{
		client:  client,
		prefix:  prefix,
		breaker: NewBreaker(maxFailures, cooldown, isOutage),
		log:     log.With().Str("component", "redis").Logger(),
	}
	s.breaker.onChange = func(from, to BreakerState) {
		s.log.Warn().Stringer("from", from).Stringer("to", to).Msg("circuit breaker state change")
	}
	return s
}

// Load returns the state stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.breaker.Do(func() error {
		b, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return model.ErrNotFound
		}
		data = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", key, err)
	}
	return data, nil
}

// Save writes data under key with no expiry.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	err := s.breaker.Do(func() error {
		return s.client.Set(ctx, s.redisKey(key), data, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// isOutage reports whether err indicates Redis is unavailable, as opposed
// to a missing key or a cancelled caller.
func isOutage(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
