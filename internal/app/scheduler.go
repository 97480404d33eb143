package app

import (
	"context"
	"time"

	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
)

// StreamingRunner is the part of the orchestrator the scheduler drives.
type StreamingRunner interface {
	RunStreaming(ctx context.Context) (model.RunSummary, error)
}

// Schedule runs a streaming invocation immediately and then every interval
// until ctx is done. Runs never overlap.
func (a *App) Schedule(ctx context.Context, interval time.Duration) {
	schedule(ctx, interval, a.Orchestrator, a.Log)
}

func schedule(ctx context.Context, interval time.Duration, runner StreamingRunner, log *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("scheduler started", "interval", interval.String())
	for {
		summary, err := runner.RunStreaming(ctx)
		if ctx.Err() != nil {
			log.Info("scheduler stopped")
			return
		}
		if err != nil {
			log.Error("scheduled run aborted", "invocation_id", summary.InvocationID, "error", err)
		}

		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
