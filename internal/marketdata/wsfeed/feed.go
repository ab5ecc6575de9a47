// Package wsfeed consumes a live candle stream from a WebSocket server.
//
// Each text message is one JSON candle, identical to model.Candle:
//
//	{"token":"BTC","exchange":"SIM","ts":"2024-01-01T00:01:00Z","open":42000.5,
//	 "high":42010,"low":41990,"close":42005,"vwp":42001.2,"volume":3.5,"trades":41}
package wsfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trading-forecaster/internal/model"
)

// Config holds the feed endpoint and reconnect policy.
type Config struct {
	// URL of the candle WebSocket server, e.g. "ws://localhost:9001/candles".
	URL string

	// Exchange and Token, when set, drop candles for other instruments.
	Exchange string
	Token    string

	// ReconnectDelay is the first reconnect wait. Defaults to 2s.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Feed streams candles from a WebSocket server and reconnects on failure.
type Feed struct {
	cfg Config
	log zerolog.Logger

	// OnReconnect is called before each reconnect wait. Optional.
	OnReconnect func()
	// OnConnState is called with true on connect and false on disconnect. Optional.
	OnConnState func(connected bool)
}

// New creates a Feed. Returns an error if the URL is not a ws:// or wss:// URL.
func New(cfg Config, log zerolog.Logger) (*Feed, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.New("wsfeed: url scheme must be ws or wss")
	}
	return &Feed{cfg: cfg, log: log.With().Str("component", "wsfeed").Logger()}, nil
}

// Start connects and streams candles into out until ctx is cancelled.
// Sends block: a slow consumer slows the reader instead of losing candles.
func (f *Feed) Start(ctx context.Context, out chan<- model.Candle) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.ReconnectDelay
	bo.MaxInterval = f.cfg.MaxReconnectDelay
	bo.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			return nil
		}

		received, err := f.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if received > 0 {
			bo.Reset()
		}

		delay := bo.NextBackOff()
		f.log.Warn().Err(err).Dur("retry_in", delay).Msg("disconnected, reconnecting")
		if f.OnReconnect != nil {
			f.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// runOnce makes a single connection and reads until disconnect or ctx
// cancel. A nil error means ctx was cancelled.
func (f *Feed) runOnce(ctx context.Context, out chan<- model.Candle) (int, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil
		}
		return 0, err
	}
	defer conn.Close()

	f.log.Info().Str("url", f.cfg.URL).Msg("connected")
	f.setConnected(true)
	defer f.setConnected(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	received := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return received, nil
			}
			return received, err
		}

		var c model.Candle
		if err := json.Unmarshal(raw, &c); err != nil {
			f.log.Warn().Err(err).Bytes("raw", raw).Msg("parse error")
			continue
		}
		if !f.accept(c) {
			continue
		}

		select {
		case out <- c:
			received++
		case <-ctx.Done():
			return received, nil
		}
	}
}

func (f *Feed) accept(c model.Candle) bool {
	if c.Token == "" {
		f.log.Debug().Msg("skipping candle with empty token")
		return false
	}
	if f.cfg.Exchange != "" && c.Exchange != f.cfg.Exchange {
		return false
	}
	if f.cfg.Token != "" && c.Token != f.cfg.Token {
		return false
	}
	return true
}

func (f *Feed) setConnected(v bool) {
	if f.OnConnState != nil {
		f.OnConnState(v)
	}
}
