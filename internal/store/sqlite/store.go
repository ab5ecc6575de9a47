// Package sqlite persists model state and recorded candles in a single
// SQLite database opened in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"trading-forecaster/internal/metrics"
	"trading-forecaster/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	dsnOptions        = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
)

// Config configures the SQLite store.
type Config struct {
	Path       string        // database file, e.g. "data/forecaster.db"
	BatchSize  int           // candles per transaction; default 100
	FlushDelay time.Duration // max time a candle waits in a batch; default 200ms
	Metrics    *metrics.Metrics
}

// Store is a single-writer SQLite store. It implements model.ModelStore
// and model.CandleWriter.
type Store struct {
	db         *sql.DB
	batchSize  int
	flushDelay time.Duration
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database and creates the schema.
func New(cfg Config, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	s := &Store{
		db:         db,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushDelay,
		metrics:    cfg.Metrics,
		log:        log.With().Str("component", "sqlite").Logger(),
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.flushDelay <= 0 {
		s.flushDelay = defaultFlushDelay
	}
	s.log.Info().Str("path", cfg.Path).Msg("opened database")
	return s, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			token      TEXT    NOT NULL,
			exchange   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			vwp        REAL    NOT NULL,
			volume     REAL    NOT NULL,
			trades     INTEGER NOT NULL,
			PRIMARY KEY (exchange, token, ts)
		);

		CREATE TABLE IF NOT EXISTS model_states (
			key        TEXT    PRIMARY KEY,
			data       BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// Load returns the model state stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM model_states WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite load %s: %w", key, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load %s: %w", key, err)
	}
	return data, nil
}

// Save upserts the model state under key.
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_states (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save %s: %w", key, err)
	}
	return nil
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (s *Store) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, s.batchSize)
	timer := time.NewTimer(s.flushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertBatch(batch); err != nil {
			s.log.Error().Err(err).Int("candles", len(batch)).Msg("batch insert failed")
		} else {
			took := time.Since(start)
			if s.metrics != nil {
				s.metrics.CandlesWritten.Add(float64(len(batch)))
				s.metrics.SQLiteCommitDur.Observe(took.Seconds())
			}
			s.log.Debug().Int("candles", len(batch)).Dur("took", took).Msg("committed candles")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case candle, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, candle)
			if len(batch) >= s.batchSize {
				flush()
				timer.Reset(s.flushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(s.flushDelay)
		}
	}
}

// insertBatch inserts a batch of candles in a single transaction.
func (s *Store) insertBatch(candles []model.Candle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (token, exchange, ts, open, high, low, close, vwp, volume, trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Token, c.Exchange, c.TS.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.VWP, c.Volume, c.Trades)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastTimestamp returns the last recorded candle time (unix ms) for an
// instrument, or 0 if none exists.
func (s *Store) LastTimestamp(exchange, token string) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE exchange = ? AND token = ?`,
		exchange, token,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
