package model

import (
	"context"
	"errors"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the forecaster from concrete storage
// implementations (file, SQLite, Redis, S3).

// ErrNotFound is returned by ModelStore.Load when no state exists for a key.
var ErrNotFound = errors.New("not found")

// ModelStore persists serialized model state, one blob per key.
type ModelStore interface {
	// Load returns the blob stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores data under key, replacing any previous blob.
	Save(ctx context.Context, key string, data []byte) error
}

// CandleReader reads recorded candles for replay.
type CandleReader interface {
	// ReadCandles returns candles for exchange:token after afterTS (unix
	// milliseconds), ordered by timestamp ascending.
	ReadCandles(exchange, token string, afterTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// CandleWriter records candles, typically in batches.
type CandleWriter interface {
	// Run reads candles from candleCh and writes them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}
