package util

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rowjay/tzwindow/internal/config"
)

const maxBackoff = time.Minute

// RetryPolicy bounds the redelivery of one operation. Backoff doubles after
// each failed attempt, capped at a minute.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Log      zerolog.Logger
}

// PolicyFrom builds the delivery policy of the watcher.
func PolicyFrom(cfg config.WatchConfig, log zerolog.Logger) RetryPolicy {
	return RetryPolicy{Attempts: cfg.RetryCount, Backoff: cfg.RetryBackoff, Log: log}
}

// Retry runs fn until it succeeds, the attempts are used up or ctx is done.
// Each failure is logged with the operation name and attempt number; no wait
// follows the last attempt.
func Retry(ctx context.Context, p RetryPolicy, op string, fn func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	backoff := p.Backoff
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		p.Log.Debug().Err(err).Str("op", op).Int("attempt", attempt).Int("of", attempts).Dur("backoff", backoff).Msg("retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
	p.Log.Warn().Err(err).Str("op", op).Int("attempts", attempts).Msg("giving up")
	return err
}
