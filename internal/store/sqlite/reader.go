package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"trading-forecaster/internal/model"
)

// Reader provides read-only access to recorded candles for replay.
// It implements model.CandleReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string, log zerolog.Logger) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Info().Str("component", "sqlite-reader").Str("path", dbPath).Msg("opened database")
	return &Reader{db: db}, nil
}

// ReadCandles returns the candles of exchange:token recorded after afterTS
// (unix ms), ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadCandles(exchange, token string, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT token, exchange, ts, open, high, low, close, vwp, volume, trades
		FROM candles
		WHERE exchange = ? AND token = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, token, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsMilli int64
		if err := rows.Scan(&c.Token, &c.Exchange, &tsMilli, &c.Open, &c.High, &c.Low, &c.Close, &c.VWP, &c.Volume, &c.Trades); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.UnixMilli(tsMilli).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
