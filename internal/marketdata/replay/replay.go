// Package replay feeds recorded candles back into the forecaster at a
// configurable speed.
package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trading-forecaster/internal/model"
)

const defaultMaxGap = 5 * time.Second

// Replayer reads recorded candles for one instrument and replays them in
// timestamp order.
type Replayer struct {
	reader model.CandleReader
	maxGap time.Duration
	log    zerolog.Logger
}

// New creates a Replayer backed by reader.
func New(reader model.CandleReader, log zerolog.Logger) *Replayer {
	return &Replayer{
		reader: reader,
		maxGap: defaultMaxGap,
		log:    log.With().Str("component", "replay").Logger(),
	}
}

// Run replays candles of exchange:token recorded after fromTS (unix ms,
// 0 = all) into outCh. speed controls the playback rate: 1.0 = real-time,
// 10.0 = 10x, 0 = as fast as the consumer reads. Sleeps between candles are
// capped at 5s. Sends block, so no candle is dropped. Returns the number of
// candles emitted.
func (r *Replayer) Run(ctx context.Context, exchange, token string, fromTS int64, speed float64, outCh chan<- model.Candle) (int, error) {
	candles, err := r.reader.ReadCandles(exchange, token, fromTS)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		r.log.Warn().Str("exchange", exchange).Str("token", token).Msg("no recorded candles")
		return 0, nil
	}
	r.log.Info().Int("candles", len(candles)).Float64("speed", speed).Msg("replay started")

	var prevTS time.Time
	emitted := 0
	for _, c := range candles {
		if speed > 0 && !prevTS.IsZero() {
			if gap := c.TS.Sub(prevTS); gap > 0 {
				wait := min(time.Duration(float64(gap)/speed), r.maxGap)
				select {
				case <-ctx.Done():
					return emitted, ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		prevTS = c.TS

		select {
		case <-ctx.Done():
			r.log.Info().Int("emitted", emitted).Msg("replay cancelled")
			return emitted, ctx.Err()
		case outCh <- c:
			emitted++
		}
	}

	r.log.Info().Int("emitted", emitted).Msg("replay completed")
	return emitted, nil
}
