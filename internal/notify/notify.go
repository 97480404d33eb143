// Package notify delivers failure alerts raised by the stage tracker.
// Every notifier makes a single delivery attempt.
package notify

import (
	"context"
	"errors"

	"go-trip-pipeline/internal/logger"
)

// Log writes alerts to the logger only. It is the default channel.
type Log struct {
	log *logger.Logger
}

func NewLog(log *logger.Logger) *Log {
	if log == nil {
		log = logger.Nop()
	}
	return &Log{log: log.With("component", "LogNotifier")}
}

func (n *Log) Publish(_ context.Context, subject, message string) error {
	n.log.Warn(subject, "alert", message)
	return nil
}

// Publisher is implemented by every notifier in this package.
type Publisher interface {
	Publish(ctx context.Context, subject, message string) error
}

// Multi fans an alert out to several channels and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, subject, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, subject, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
