package pipeline

import (
	"context"
	"math"
	"time"

	"go-trip-pipeline/internal/model"
)

// nextDelay returns the wait before poll number attempt (zero based), with
// exponential backoff capped at MaxDelay.
func nextDelay(cfg model.BackoffConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = model.DefaultBackoff.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = model.DefaultBackoff.MaxDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}

	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt)))
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}

// WaitForStatement polls a submitted statement until it reaches a terminal
// state. A statement still running when timeout has elapsed yields a
// *TimeoutError; the statement keeps running server-side. A timeout <= 0
// waits until ctx is done.
func WaitForStatement(ctx context.Context, exec StatementExecutor, clock Clock, id string, timeout time.Duration, backoff model.BackoffConfig) (model.StatementDescription, error) {
	if clock == nil {
		clock = SystemClock
	}
	start := clock.Now()
	deadline := start.Add(timeout)

	for attempt := 0; ; attempt++ {
		desc, err := exec.Describe(ctx, id)
		if err != nil {
			return desc, err
		}
		if model.StatementTerminal(desc.Status) {
			return desc, nil
		}

		now := clock.Now()
		delay := nextDelay(backoff, attempt)
		if timeout > 0 {
			if !now.Before(deadline) {
				return desc, &TimeoutError{StatementID: id, LastStatus: desc.Status, Waited: now.Sub(start)}
			}
			if remaining := deadline.Sub(now); delay > remaining {
				delay = remaining
			}
		}

		select {
		case <-ctx.Done():
			return desc, ctx.Err()
		case <-clock.After(delay):
		}
	}
}
